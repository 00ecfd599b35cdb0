package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/organoid-counter/internal/detection"
)

func record(index int, s detection.ShapeDescriptors) detection.OrganoidRecord {
	return detection.OrganoidRecord{Index: index, Region: detection.Region{Label: index, Shape: s}}
}

var sample = detection.ShapeDescriptors{
	Area:        8000,
	Feret:       104.5,
	MinFeret:    98.25,
	Major:       103,
	Minor:       99,
	Circularity: 0.9,
	Roundness:   0.5,
	Solidity:    0.97,
}

func TestRows_Placeholder(t *testing.T) {
	rows := Rows("day3", "well_A1.tif", nil)
	require.Len(t, rows, 1)
	require.Equal(t,
		[]string{"day3", "well_A1.tif", "NA", "0", "NA", "NA", "NA", "NA", "NA", "NA", "NA", "NA", "NA", "NA", "NA"},
		rows[0])
	require.Len(t, rows[0], len(Header))
}

func TestRows_Records(t *testing.T) {
	second := sample
	second.Area = 12000
	rows := Rows("day3", "well_A1.tif", []detection.OrganoidRecord{record(1, sample), record(2, second)})

	require.Len(t, rows, 2)
	for i, row := range rows {
		require.Len(t, row, len(Header))
		require.Equal(t, "day3", row[0])
		require.Equal(t, "well_A1.tif", row[1])
		require.Equal(t, strconv.Itoa(i+1), row[2])
		require.Equal(t, "2", row[3], "NumOrganoids repeats on every row")
		require.Equal(t, "True", row[14])
	}

	row := rows[0]
	require.Equal(t, "104.5", row[4])
	require.Equal(t, "98.25", row[5])
	require.Equal(t, "101.375", row[6])
	require.Equal(t, "8000", row[7])
	require.Equal(t, "12000", rows[1][7])
}

func TestProject(t *testing.T) {
	tests := []detection.ShapeDescriptors{
		sample,
		{Area: 1, Feret: 1.1, MinFeret: 0.3},
		{Area: 6545.751249732017, Feret: 92.42994882984762, MinFeret: 91.7886470914468},
	}
	for _, s := range tests {
		m := Project(record(1, s))
		require.Equal(t, (s.Feret+s.MinFeret)/2, m.AverageFeret)
		require.InDelta(t, 2*math.Sqrt(s.Area/math.Pi), m.ECD, 1e-12)
		require.InDelta(t, s.Area, math.Pi*m.ECD*m.ECD/4, 1e-9*math.Max(1, s.Area))
	}
}

func TestEquivalentDiameter_Evos(t *testing.T) {
	const px = 0.8777017
	area := 8000 * px * px
	want := 2 * math.Sqrt(8000*px*px/math.Pi)
	require.InDelta(t, want, EquivalentDiameter(area), 1e-12)
	require.InDelta(t, 88.58, EquivalentDiameter(area), 0.01)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.WriteImage("g1", "a.tif", []detection.OrganoidRecord{record(1, sample)}))
	require.NoError(t, w.WriteImage("g1", "b.tif", nil))
	require.Equal(t, 2, w.RowsWritten())

	lines, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, Header, lines[0])
	require.Equal(t, "a.tif", lines[1][1])
	require.Equal(t, "1", lines[1][2])
	require.Equal(t, "b.tif", lines[2][1])
	require.Equal(t, NA, lines[2][2])
}

func TestWriter_QuotesFieldsWithCommas(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteImage("plate 1, day 3", "x.tif", nil))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, "plate 1, day 3", lines[1][0])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestNewWriter_Error(t *testing.T) {
	_, err := NewWriter(failingWriter{})
	require.Error(t, err)
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 59, 0, time.UTC)
	require.Equal(t, "output_2024-03-05-14-07.csv", FileName(now))
}
