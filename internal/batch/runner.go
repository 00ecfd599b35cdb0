package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/organoid-counter/internal/config"
	"github.com/ironsheep/organoid-counter/internal/imaging"
	"github.com/ironsheep/organoid-counter/internal/report"
)

// Summary describes a finished batch.
type Summary struct {
	Images       int      `json:"images"`
	Skipped      int      `json:"skipped"`
	Organoids    int      `json:"organoids"`
	Rows         int      `json:"rows"`
	ReportPath   string   `json:"report_path"`
	ROIDir       string   `json:"roi_dir"`
	SkippedFiles []string `json:"skipped_files,omitempty"`
}

// Runner processes a Source with a pool of workers and writes the report.
//
// Images are processed in parallel but committed strictly in source order:
// a finished image waits in a reorder buffer until every image before it
// has been written, so the report is identical for any worker count.
type Runner struct {
	cfg      config.Run
	pipeline *Pipeline
	now      func() time.Time
}

// NewRunner builds a Runner for a resolved configuration.
func NewRunner(cfg config.Run, th imaging.Thresholder) *Runner {
	return &Runner{
		cfg:      cfg,
		pipeline: NewPipeline(cfg, th),
		now:      time.Now,
	}
}

type job struct {
	seq  int
	item Item
	err  error
}

type outcome struct {
	seq    int
	item   Item
	result *Result
	err    error
}

// Run processes every item of src. A source that fails its Check is
// returned before any output is created, and output problems found before
// the first image are returned wrapping ErrOutputUnwritable. Per-image
// failures are logged and counted as skipped; only cancellation or a report
// write failure stops the batch early.
func (r *Runner) Run(ctx context.Context, src Source) (*Summary, error) {
	if c, ok := src.(Checker); ok {
		if err := c.Check(); err != nil {
			return nil, err
		}
	}

	out, err := PrepareOutput(r.cfg.OutputDir, r.now())
	if err != nil {
		return nil, err
	}
	f, err := out.CreateReport()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w, err := report.NewWriter(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	jobs := make(chan job)
	results := make(chan outcome, workers)

	g.Go(func() error {
		defer close(jobs)
		seq := 0
		for item, err := range src.Items() {
			select {
			case jobs <- job{seq: seq, item: item, err: err}:
				seq++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				o := outcome{seq: j.seq, item: j.item, err: j.err}
				if o.err == nil {
					o.result, o.err = r.pipeline.Process(gctx, j.item)
				}
				select {
				case results <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	summary := &Summary{ReportPath: out.ReportPath, ROIDir: out.ROIDir}
	pending := make(map[int]outcome)
	next := 0
	var writeErr error

	for o := range results {
		pending[o.seq] = o
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if writeErr != nil {
				continue
			}
			if writeErr = r.commit(out, w, cur, summary); writeErr != nil {
				cancel()
			}
		}
	}

	gerr := g.Wait()
	summary.Rows = w.RowsWritten()
	if writeErr != nil {
		return summary, writeErr
	}
	if gerr != nil {
		return summary, gerr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	log.Printf("Batch finished: %d images, %d skipped, %d organoids, %d report rows, report %s",
		summary.Images, summary.Skipped, summary.Organoids, summary.Rows, summary.ReportPath)
	return summary, nil
}

// commit writes one image's annotation and rows.
func (r *Runner) commit(out *Output, w *report.Writer, o outcome, s *Summary) error {
	name := o.item.Name()
	if o.err != nil {
		if errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded) {
			return nil
		}
		log.Printf("Skipping %s: %v", name, o.err)
		s.Skipped++
		if o.item.Filename != "" {
			s.SkippedFiles = append(s.SkippedFiles, name)
		}
		r.pipeline.stage(name, StageSkipped)
		return nil
	}

	res := o.result
	path := out.AnnotationPath(o.item.Group, o.item.Filename)
	if err := res.Annotated.Save(path); err != nil {
		log.Printf("Warning: %s: %v", name, err)
	}

	if err := w.WriteImage(o.item.Group, o.item.Filename, res.Records); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	r.pipeline.stage(name, StageReported)

	s.Images++
	s.Organoids += len(res.Records)
	if r.cfg.Debug() {
		log.Printf("%s: %d organoids (threshold %d)", name, len(res.Records), res.Threshold)
	}
	r.pipeline.stage(name, StageClosed)
	return nil
}
