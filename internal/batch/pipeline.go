package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/ironsheep/organoid-counter/internal/config"
	"github.com/ironsheep/organoid-counter/internal/detection"
	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// Stage is a step of the per-image state machine.
type Stage int

const (
	StageLoaded Stage = iota
	StagePreprocessed
	StageInteractiveWait
	StageSegmented
	StageWatershed
	StageExtracted
	StageFiltered
	StageAnnotated
	StageReported
	StageClosed
	StageSkipped
)

var stageNames = [...]string{
	StageLoaded:          "loaded",
	StagePreprocessed:    "preprocessed",
	StageInteractiveWait: "interactive-wait",
	StageSegmented:       "segmented",
	StageWatershed:       "watershed",
	StageExtracted:       "extracted",
	StageFiltered:        "filtered",
	StageAnnotated:       "annotated",
	StageReported:        "reported",
	StageClosed:          "closed",
	StageSkipped:         "skipped",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// NewThresholder returns the strategy for mode. confirm is only used for
// interactive thresholding.
func NewThresholder(mode config.ThresholdMode, confirm imaging.ConfirmFunc) imaging.Thresholder {
	if mode == config.ThresholdInteractive {
		return imaging.InteractiveThreshold{Confirm: confirm}
	}
	return imaging.AutoThreshold{}
}

// Result is everything one image produced.
type Result struct {
	Group    string `json:"group"`
	Filename string `json:"filename"`

	Threshold uint8 `json:"threshold"`
	Inverted  bool  `json:"inverted"`

	Mask       *imaging.BinaryMask        `json:"-"`
	Extraction *detection.ExtractResult    `json:"extraction"`
	Records    []detection.OrganoidRecord `json:"records"`
	Annotated  *imaging.AnnotatedImage    `json:"-"`

	// Warnings lists recovered problems, such as a mask that could not be
	// inverted.
	Warnings []string `json:"warnings,omitempty"`
}

// Pipeline runs the per-image stages with one fixed configuration. It holds
// no per-image state and is safe for concurrent use when its Thresholder is.
type Pipeline struct {
	cfg         config.Run
	thresholder imaging.Thresholder
	calibration imaging.Calibration
	extract     detection.ExtractParams
	criteria    detection.Criteria
	annotate    imaging.AnnotateOptions
}

// NewPipeline binds a resolved configuration and a threshold strategy.
func NewPipeline(cfg config.Run, th imaging.Thresholder) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		thresholder: th,
		calibration: imaging.Calibration{
			PixelWidth:  cfg.PixelWidth,
			PixelHeight: cfg.PixelHeight,
			Unit:        cfg.Unit,
		},
		extract: detection.ExtractParams{
			MinSize:        cfg.MinimumSize,
			MaxSize:        cfg.MaximumSize,
			CircularityMin: cfg.CircularityMin,
			CircularityMax: cfg.CircularityMax,
		},
		criteria: detection.Criteria{
			AreaThreshold:  cfg.AreaThreshold,
			RoundThreshold: cfg.RoundThreshold,
		},
		annotate: imaging.AnnotateOptions{
			OutlineColor: cfg.OutlineColor,
			LabelColor:   cfg.LabelColor,
		},
	}
}

// Process decodes item and runs it through the pipeline. Decode failures
// wrap imaging.ErrImageLoad.
func (p *Pipeline) Process(ctx context.Context, item Item) (*Result, error) {
	src, _, err := imaging.Decode(item.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", item.Name(), err)
	}
	res, err := p.ProcessImage(ctx, item.Name(), src)
	if err != nil {
		return nil, err
	}
	res.Group = item.Group
	res.Filename = item.Filename
	return res, nil
}

// ProcessImage runs an already decoded image from calibration through
// annotation. name is used in logs and operator prompts.
func (p *Pipeline) ProcessImage(ctx context.Context, name string, src image.Image) (*Result, error) {
	p.stage(name, StageLoaded)
	res := &Result{Filename: name}

	img, err := imaging.Calibrate(name, src, p.calibration)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	p.stage(name, StagePreprocessed)

	if p.cfg.ThresholdMode == config.ThresholdInteractive {
		p.stage(name, StageInteractiveWait)
	}
	level, err := p.thresholder.Threshold(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: threshold: %w", name, err)
	}
	res.Threshold = level

	mask := imaging.Binarize(img, level)
	if !p.cfg.Invert {
		inv, err := imaging.InvertMask(mask)
		switch {
		case errors.Is(err, imaging.ErrInvertUnsupported):
			log.Printf("Warning: %s: could not invert mask, continuing without invert", name)
			res.Warnings = append(res.Warnings, "mask could not be inverted; used uninverted mask")
		case err != nil:
			return nil, fmt.Errorf("%s: invert: %w", name, err)
		default:
			mask = inv
			res.Inverted = true
		}
	}

	mask = detection.Segment(mask, p.cfg.Watershed)
	p.stage(name, StageSegmented)
	if p.cfg.Watershed {
		p.stage(name, StageWatershed)
	}
	res.Mask = mask

	res.Extraction = detection.ExtractParticles(mask, p.calibration, p.extract)
	p.stage(name, StageExtracted)

	res.Records = p.criteria.Filter(res.Extraction.Regions)
	p.stage(name, StageFiltered)

	res.Annotated, err = imaging.Annotate(src, detection.Overlays(res.Records), p.annotate)
	if err != nil {
		return nil, fmt.Errorf("%s: annotate: %w", name, err)
	}
	p.stage(name, StageAnnotated)

	return res, nil
}

func (p *Pipeline) stage(name string, s Stage) {
	if p.cfg.Debug() {
		log.Printf("%s: %s", name, s)
	}
}
