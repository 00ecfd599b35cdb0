// Package report writes the aggregate organoid measurement table.
//
// The table is CSV with one header row. Each image contributes a block of
// rows: one per accepted organoid in index order, or a single placeholder
// row of "NA" values when nothing was accepted. Blocks are appended and
// flushed one at a time and never revised.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/ironsheep/organoid-counter/internal/detection"
)

// Header is the column layout of the report.
var Header = []string{
	"Group",
	"File Name",
	"ROI Index",
	"NumOrganoids",
	"Feret",
	"MinFeret",
	"Average Feret",
	"Area",
	"Equivalent Circle Diameter",
	"Major",
	"Minor",
	"Circularity",
	"Roundness",
	"Solidity",
	"MeetsCriteria",
}

// NA fills every measurement column of the placeholder row.
const NA = "NA"

// Measurement is the report projection of one organoid.
type Measurement struct {
	Index        int     `json:"index"`
	Feret        float64 `json:"feret"`
	MinFeret     float64 `json:"min_feret"`
	AverageFeret float64 `json:"average_feret"`
	Area         float64 `json:"area"`
	ECD          float64 `json:"equivalent_circle_diameter"`
	Major        float64 `json:"major"`
	Minor        float64 `json:"minor"`
	Circularity  float64 `json:"circularity"`
	Roundness    float64 `json:"roundness"`
	Solidity     float64 `json:"solidity"`
}

// Project derives the reported values of rec.
func Project(rec detection.OrganoidRecord) Measurement {
	s := rec.Region.Shape
	return Measurement{
		Index:        rec.Index,
		Feret:        s.Feret,
		MinFeret:     s.MinFeret,
		AverageFeret: (s.Feret + s.MinFeret) / 2,
		Area:         s.Area,
		ECD:          EquivalentDiameter(s.Area),
		Major:        s.Major,
		Minor:        s.Minor,
		Circularity:  s.Circularity,
		Roundness:    s.Roundness,
		Solidity:     s.Solidity,
	}
}

// EquivalentDiameter is the diameter of the circle with the given area.
func EquivalentDiameter(area float64) float64 {
	return 2 * math.Sqrt(area/math.Pi)
}

// Rows renders the block of one image. records must already be numbered.
func Rows(group, filename string, records []detection.OrganoidRecord) [][]string {
	if len(records) == 0 {
		row := []string{group, filename, NA, "0"}
		for len(row) < len(Header) {
			row = append(row, NA)
		}
		return [][]string{row}
	}

	n := strconv.Itoa(len(records))
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		m := Project(rec)
		rows = append(rows, []string{
			group,
			filename,
			strconv.Itoa(m.Index),
			n,
			formatFloat(m.Feret),
			formatFloat(m.MinFeret),
			formatFloat(m.AverageFeret),
			formatFloat(m.Area),
			formatFloat(m.ECD),
			formatFloat(m.Major),
			formatFloat(m.Minor),
			formatFloat(m.Circularity),
			formatFloat(m.Roundness),
			formatFloat(m.Solidity),
			"True",
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writer appends image blocks to a CSV stream. It is not safe for
// concurrent use; the batch runner owns it from a single goroutine.
type Writer struct {
	csv  *csv.Writer
	rows int
}

// NewWriter writes the header to w and returns a Writer for the blocks.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	return &Writer{csv: cw}, nil
}

// WriteImage appends the block for one image and flushes it.
func (w *Writer) WriteImage(group, filename string, records []detection.OrganoidRecord) error {
	rows := Rows(group, filename, records)
	if err := w.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows for %s: %w", filename, err)
	}
	w.rows += len(rows)
	return nil
}

// RowsWritten counts data rows written so far, placeholder rows included.
func (w *Writer) RowsWritten() int { return w.rows }

// FileName returns the report name for a batch started at now, e.g.
// output_2024-03-05-14-07.csv.
func FileName(now time.Time) string {
	return "output_" + now.Format("2006-01-02-15-04") + ".csv"
}
