package detection

import "github.com/ironsheep/organoid-counter/internal/imaging"

// Criteria are the biological acceptance thresholds. AreaThreshold is in
// calibrated units².
type Criteria struct {
	AreaThreshold  float64
	RoundThreshold float64
}

// OrganoidRecord is an accepted region with its 1-based index within the
// image.
type OrganoidRecord struct {
	Index  int    `json:"index"`
	Region Region `json:"region"`
}

// Accepts reports whether a region with descriptors s is an organoid. Both
// thresholds are strict.
func (c Criteria) Accepts(s ShapeDescriptors) bool {
	return s.Area > c.AreaThreshold &&
		s.Roundness > c.RoundThreshold &&
		s.Circularity <= 1
}

// Filter keeps the accepted regions in their input order and numbers them
// from 1.
func (c Criteria) Filter(regions []Region) []OrganoidRecord {
	records := make([]OrganoidRecord, 0, len(regions))
	for _, r := range regions {
		if !c.Accepts(r.Shape) {
			continue
		}
		records = append(records, OrganoidRecord{Index: len(records) + 1, Region: r})
	}
	return records
}

// Overlays converts records into annotation overlays, keeping their order.
func Overlays(records []OrganoidRecord) []imaging.Overlay {
	out := make([]imaging.Overlay, len(records))
	for i, rec := range records {
		out[i] = imaging.Overlay{
			Index:   rec.Index,
			Outline: rec.Region.Outline,
			Bounds:  rec.Region.Bounds,
		}
	}
	return out
}
