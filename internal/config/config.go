// Package config builds the immutable parameter bundle for one organoid
// counting run.
//
// Values are layered in a fixed order: built-in defaults, an optional YAML
// file, a .env file plus ORGANOID_* environment variables, and finally any
// command-line flags the caller applies with Set. Validate must pass before a
// batch starts; a Run is passed by value to every pipeline component and is
// never read from global state.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks malformed or missing run parameters. It is fatal:
// no image is processed when configuration fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to upper-cased keys when reading the environment,
// e.g. ORGANOID_ROUND_THRESHOLD.
const EnvPrefix = "ORGANOID_"

// ThresholdMode selects how the binarization level is chosen.
type ThresholdMode string

const (
	// ThresholdAutomatic computes the level from the intensity histogram.
	ThresholdAutomatic ThresholdMode = "automatic"

	// ThresholdInteractive asks an operator to confirm the level for every
	// image and blocks until they answer.
	ThresholdInteractive ThresholdMode = "interactive"
)

// Scale presets for the Evos microscope objectives, in µm per pixel.
const (
	PresetEvos10X = "evos-10x"
	PresetEvos4X  = "evos-4x"
	PresetCustom  = "custom"

	Evos10XPixelSize = 0.8777017
	Evos4XPixelSize  = 2.1546047
)

// Run is the complete parameter bundle for one batch.
type Run struct {
	// Segmentation
	ThresholdMode ThresholdMode `yaml:"threshold_mode"`
	Watershed     bool          `yaml:"watershed"`
	// Invert is true for light organoids on a dark background. When false
	// the thresholded mask is inverted so dark organoids become foreground.
	Invert bool `yaml:"invert"`

	// Particle extraction (pixel units)
	MinimumSize    int     `yaml:"minimum_size"`
	MaximumSize    int     `yaml:"maximum_size"` // 0 means unbounded
	CircularityMin float64 `yaml:"circularity_min"`
	CircularityMax float64 `yaml:"circularity_max"`

	// Biological criteria
	RoundThreshold float64 `yaml:"round_threshold"`
	AreaThreshold  float64 `yaml:"area_threshold"` // calibrated units²

	// Calibration
	ScalePreset string  `yaml:"scale_preset"`
	PixelWidth  float64 `yaml:"pixel_width"`
	PixelHeight float64 `yaml:"pixel_height"`
	Unit        string  `yaml:"unit"`

	// Input / output
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	Workers   int    `yaml:"workers"`

	// Annotation
	OutlineColor string `yaml:"outline_color"`
	LabelColor   string `yaml:"label_color"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the standard parameters for Evos 10X brightfield plates.
func Default() Run {
	return Run{
		ThresholdMode:  ThresholdAutomatic,
		Watershed:      false,
		Invert:         false,
		MinimumSize:    6000,
		MaximumSize:    0,
		CircularityMin: 0.2,
		CircularityMax: 1.0,
		RoundThreshold: 0.33,
		AreaThreshold:  6000,
		ScalePreset:    PresetEvos10X,
		PixelWidth:     Evos10XPixelSize,
		PixelHeight:    Evos10XPixelSize,
		Unit:           "um",
		Workers:        runtime.NumCPU(),
		OutlineColor:   "#FFFF00",
		LabelColor:     "#FFFF00",
		LogLevel:       "info",
	}
}

// Load layers defaults, the YAML file at path (skipped when path is empty or
// missing), the .env file in the working directory and ORGANOID_* variables.
// The result is not validated; callers apply flags first and then Validate.
func Load(path string) (Run, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Run{}, err
		}
	}

	// Missing .env is fine
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Run{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Run) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: error parsing config file %s: %v", ErrInvalidConfig, path, err)
	}

	// A file that spells out pixel dimensions without naming a preset means
	// a custom calibration.
	var keys map[string]interface{}
	if err := yaml.Unmarshal(data, &keys); err == nil {
		_, hasPreset := keys["scale_preset"]
		_, hasWidth := keys["pixel_width"]
		_, hasHeight := keys["pixel_height"]
		if !hasPreset && (hasWidth || hasHeight) {
			cfg.ScalePreset = PresetCustom
		}
	}
	return nil
}

func applyEnv(cfg *Run, lookup func(string) (string, bool)) error {
	for _, key := range Keys() {
		val, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok {
			continue
		}
		if err := Set(cfg, key, val); err != nil {
			return err
		}
	}
	return nil
}

// Save writes cfg as YAML, for producing a starter configuration file.
func Save(cfg Run, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Keys lists every settable key, in the spelling used by YAML and Set.
func Keys() []string {
	return []string{
		"threshold_mode", "watershed", "invert",
		"minimum_size", "maximum_size", "circularity_min", "circularity_max",
		"round_threshold", "area_threshold",
		"scale_preset", "pixel_width", "pixel_height", "unit",
		"input_dir", "output_dir", "workers",
		"outline_color", "label_color", "log_level",
	}
}

// Set assigns a single value by key. Hyphens in key are treated as
// underscores so flag names like -round-threshold map directly.
func Set(cfg *Run, key, value string) error {
	key = strings.ReplaceAll(strings.ToLower(key), "-", "_")
	value = strings.TrimSpace(value)

	var err error
	switch key {
	case "threshold_mode":
		cfg.ThresholdMode = ThresholdMode(strings.ToLower(value))
	case "watershed":
		cfg.Watershed, err = strconv.ParseBool(value)
	case "invert":
		cfg.Invert, err = strconv.ParseBool(value)
	case "minimum_size":
		cfg.MinimumSize, err = strconv.Atoi(value)
	case "maximum_size":
		cfg.MaximumSize, err = strconv.Atoi(value)
	case "circularity_min":
		cfg.CircularityMin, err = strconv.ParseFloat(value, 64)
	case "circularity_max":
		cfg.CircularityMax, err = strconv.ParseFloat(value, 64)
	case "round_threshold":
		cfg.RoundThreshold, err = strconv.ParseFloat(value, 64)
	case "area_threshold":
		cfg.AreaThreshold, err = strconv.ParseFloat(value, 64)
	case "scale_preset":
		cfg.ScalePreset = strings.ToLower(value)
	case "pixel_width":
		cfg.PixelWidth, err = strconv.ParseFloat(value, 64)
		cfg.ScalePreset = PresetCustom
	case "pixel_height":
		cfg.PixelHeight, err = strconv.ParseFloat(value, 64)
		cfg.ScalePreset = PresetCustom
	case "unit":
		cfg.Unit = value
	case "input_dir":
		cfg.InputDir = value
	case "output_dir":
		cfg.OutputDir = value
	case "workers":
		cfg.Workers, err = strconv.Atoi(value)
	case "outline_color":
		cfg.OutlineColor = value
	case "label_color":
		cfg.LabelColor = value
	case "log_level":
		cfg.LogLevel = strings.ToLower(value)
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, value, err)
	}
	return nil
}

// Resolve applies the scale preset and worker policy and returns the
// finished bundle. Interactive thresholding runs on a single worker because
// the operator answers one image at a time.
func (r Run) Resolve() (Run, error) {
	switch r.ScalePreset {
	case PresetEvos10X:
		r.PixelWidth, r.PixelHeight = Evos10XPixelSize, Evos10XPixelSize
	case PresetEvos4X:
		r.PixelWidth, r.PixelHeight = Evos4XPixelSize, Evos4XPixelSize
	case PresetCustom, "":
		r.ScalePreset = PresetCustom
	default:
		return Run{}, fmt.Errorf("%w: unknown scale preset %q", ErrInvalidConfig, r.ScalePreset)
	}

	if r.Workers <= 0 {
		r.Workers = runtime.NumCPU()
	}
	if r.ThresholdMode == ThresholdInteractive {
		r.Workers = 1
	}

	if err := r.Validate(); err != nil {
		return Run{}, err
	}
	return r, nil
}

// Validate reports the first malformed parameter.
func (r Run) Validate() error {
	switch r.ThresholdMode {
	case ThresholdAutomatic, ThresholdInteractive:
	default:
		return fmt.Errorf("%w: threshold_mode must be %q or %q, got %q",
			ErrInvalidConfig, ThresholdAutomatic, ThresholdInteractive, r.ThresholdMode)
	}
	for _, v := range []struct {
		key string
		val float64
	}{
		{"pixel_width", r.PixelWidth},
		{"pixel_height", r.PixelHeight},
		{"circularity_min", r.CircularityMin},
		{"circularity_max", r.CircularityMax},
		{"round_threshold", r.RoundThreshold},
		{"area_threshold", r.AreaThreshold},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidConfig, v.key, v.val)
		}
	}
	if !(r.PixelWidth > 0) || !(r.PixelHeight > 0) {
		return fmt.Errorf("%w: pixel_width and pixel_height must be positive (got %v x %v)",
			ErrInvalidConfig, r.PixelWidth, r.PixelHeight)
	}
	if r.MinimumSize < 0 {
		return fmt.Errorf("%w: minimum_size must not be negative", ErrInvalidConfig)
	}
	if r.MaximumSize != 0 && r.MaximumSize < r.MinimumSize {
		return fmt.Errorf("%w: maximum_size %d is below minimum_size %d",
			ErrInvalidConfig, r.MaximumSize, r.MinimumSize)
	}
	if r.CircularityMin < 0 || r.CircularityMax > 1 || r.CircularityMin > r.CircularityMax {
		return fmt.Errorf("%w: circularity band [%v, %v] must lie within [0, 1]",
			ErrInvalidConfig, r.CircularityMin, r.CircularityMax)
	}
	if r.RoundThreshold < 0 || r.AreaThreshold < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidConfig)
	}
	if r.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// RequireDirs checks the directories needed by a batch run are named and
// that the input directory exists.
func (r Run) RequireDirs() error {
	if r.InputDir == "" {
		return fmt.Errorf("%w: input_dir is required", ErrInvalidConfig)
	}
	if info, err := os.Stat(r.InputDir); err != nil {
		return fmt.Errorf("%w: input_dir: %v", ErrInvalidConfig, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%w: input_dir %s is not a directory", ErrInvalidConfig, r.InputDir)
	}
	if r.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidConfig)
	}
	return nil
}

// Debug reports whether debug logging was requested.
func (r Run) Debug() bool {
	return r.LogLevel == "debug"
}
