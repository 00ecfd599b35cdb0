package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ironsheep/organoid-counter/internal/batch"
	"github.com/ironsheep/organoid-counter/internal/config"
	"github.com/ironsheep/organoid-counter/internal/imaging"
	"github.com/ironsheep/organoid-counter/internal/ocr"
	"github.com/ironsheep/organoid-counter/internal/report"
	"github.com/ironsheep/organoid-counter/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("organoid-counter - count and measure organoids in microscopy images")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  organoid-counter run     [flags]          Process input_dir and write the report")
	fmt.Println("  organoid-counter analyze [flags] <image>  Measure one image, CSV rows on stdout")
	fmt.Println("  organoid-counter verify  [flags] <image>  Read drawn labels back with OCR")
	fmt.Println("  organoid-counter serve   [flags]          MCP server on stdin/stdout")
	fmt.Println("  organoid-counter config  [flags] -o FILE  Write the effective configuration")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Every command accepts -config FILE (YAML) and one flag per setting,")
	fmt.Println("e.g. -round-threshold 0.4 -watershed -scale-preset evos-4x.")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  ORGANOID_<SETTING>=value       Override a setting (also read from .env)")
	fmt.Println("  ORGANOID_LOG_LEVEL=debug       Enable debug logging")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("organoid-counter %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		usage()
		return
	}

	// Configure logging to stderr (stdout carries reports and MCP traffic)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runBatch(ctx, args)
	case "analyze":
		err = runAnalyze(ctx, args)
	case "verify":
		err = runVerify(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "config":
		err = runConfig(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// configFlag records one setting given on the command line. Values are
// applied with config.Set after the file and environment layers.
type configFlag struct {
	key     string
	boolean bool
	values  *[][2]string
}

func (f *configFlag) String() string   { return "" }
func (f *configFlag) IsBoolFlag() bool { return f.boolean }
func (f *configFlag) Set(v string) error {
	*f.values = append(*f.values, [2]string{f.key, v})
	return nil
}

// parseConfig parses args into fs, layering defaults, -config, the
// environment and flags, and resolves the result.
func parseConfig(fs *flag.FlagSet, args []string) (config.Run, error) {
	path := fs.String("config", "", "YAML configuration file")
	var values [][2]string
	for _, key := range config.Keys() {
		name := strings.ReplaceAll(key, "_", "-")
		boolean := key == "watershed" || key == "invert"
		fs.Var(&configFlag{key: key, boolean: boolean, values: &values}, name, "sets "+key)
	}
	if err := fs.Parse(args); err != nil {
		return config.Run{}, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return config.Run{}, err
	}
	for _, kv := range values {
		if err := config.Set(&cfg, kv[0], kv[1]); err != nil {
			return config.Run{}, err
		}
	}
	cfg, err = cfg.Resolve()
	if err != nil {
		return config.Run{}, err
	}

	if cfg.Debug() {
		log.Printf("organoid-counter v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
		log.Printf("Configuration: %+v", cfg)
	}
	return cfg, nil
}

func thresholder(cfg config.Run) imaging.Thresholder {
	return batch.NewThresholder(cfg.ThresholdMode, imaging.PromptConfirm(os.Stdin, os.Stderr))
}

func runBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if err := cfg.RequireDirs(); err != nil {
		return err
	}

	summary, err := batch.NewRunner(cfg, thresholder(cfg)).Run(ctx, batch.DirSource{Root: cfg.InputDir})
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d images (%d skipped), %d organoids\n", summary.Images, summary.Skipped, summary.Organoids)
	fmt.Printf("Report:      %s\n", summary.ReportPath)
	fmt.Printf("Annotations: %s\n", summary.ROIDir)
	for _, f := range summary.SkippedFiles {
		fmt.Printf("Skipped:     %s\n", f)
	}
	return nil
}

// analyzeOne decodes and processes a single image file.
func analyzeOne(ctx context.Context, cfg config.Run, path string) (*batch.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imaging.ErrImageLoad, err)
	}
	return batch.NewPipeline(cfg, thresholder(cfg)).Process(ctx, batch.Item{
		Filename: filepath.Base(path),
		Path:     path,
		Data:     data,
	})
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the result as JSON instead of CSV")
	maskPath := fs.String("mask", "", "also write the segmented mask to this `file`")
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one image path, got %d arguments", fs.NArg())
	}
	path := fs.Arg(0)

	res, err := analyzeOne(ctx, cfg, path)
	if err != nil {
		return err
	}

	if cfg.OutputDir != "" {
		dest := filepath.Join(cfg.OutputDir, imaging.ROIImageDir, imaging.AnnotatedFileName(res.Filename))
		if err := res.Annotated.Save(dest); err != nil {
			return err
		}
		log.Printf("Annotated image written to %s", dest)
	}
	if *maskPath != "" {
		if err := res.Mask.Save(*maskPath); err != nil {
			return err
		}
		log.Printf("Mask written to %s", *maskPath)
	}

	if *asJSON {
		measurements := make([]report.Measurement, 0, len(res.Records))
		for _, rec := range res.Records {
			measurements = append(measurements, report.Project(rec))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"file":          res.Filename,
			"threshold":     res.Threshold,
			"inverted":      res.Inverted,
			"num_organoids": len(res.Records),
			"measurements":  measurements,
			"warnings":      res.Warnings,
		})
	}

	w, err := report.NewWriter(os.Stdout)
	if err != nil {
		return err
	}
	return w.WriteImage("", res.Filename, res.Records)
}

func runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	lang := fs.String("lang", ocr.DefaultLanguage, "Tesseract language")
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one image path, got %d arguments", fs.NArg())
	}

	res, err := analyzeOne(ctx, cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	audit, err := ocr.AuditLabels(res.Annotated, ocr.Tesseract{Language: *lang}, ocr.AuditOptions{LabelColor: cfg.LabelColor})
	if err != nil {
		return err
	}

	for _, l := range audit.Labels {
		status := "ok"
		if !l.Match {
			status = "MISMATCH"
		}
		fmt.Printf("%4d  read %-6q confidence %.2f  %s\n", l.Index, l.Read, l.Confidence, status)
	}
	fmt.Printf("%d labels, %d matched, %d mismatched (Tesseract %s)\n",
		len(audit.Labels), audit.Matched, audit.Mismatched, ocr.Version())
	if !audit.OK() {
		return fmt.Errorf("%d labels did not read back as their index", audit.Mismatched)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	return server.New(cfg, ocr.Tesseract{}).Run(ctx)
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "organoid-counter.yaml", "file to write")
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, *out); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", *out)
	return nil
}
