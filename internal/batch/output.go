package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/organoid-counter/internal/imaging"
	"github.com/ironsheep/organoid-counter/internal/report"
)

// ErrOutputUnwritable marks an output location that cannot be created. It is
// fatal: no image is processed.
var ErrOutputUnwritable = errors.New("output location not writable")

// Output is the file layout of one batch.
type Output struct {
	Dir        string
	ROIDir     string
	ReportPath string
}

// PrepareOutput creates dir and its annotation subdirectory and names the
// report for a batch started at now.
func PrepareOutput(dir string, now time.Time) (*Output, error) {
	out := &Output{
		Dir:        dir,
		ROIDir:     filepath.Join(dir, imaging.ROIImageDir),
		ReportPath: filepath.Join(dir, report.FileName(now)),
	}
	if err := os.MkdirAll(out.ROIDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}
	return out, nil
}

// CreateReport creates (or truncates) the report file.
func (o *Output) CreateReport() (*os.File, error) {
	f, err := os.Create(o.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputUnwritable, err)
	}
	return f, nil
}

// AnnotationPath is where the annotated copy of a group's file goes. Images
// of named groups get a subdirectory so equal file names in different groups
// do not overwrite each other.
func (o *Output) AnnotationPath(group, filename string) string {
	return filepath.Join(o.ROIDir, group, imaging.AnnotatedFileName(filename))
}
