// Package detection turns a binary mask into measured, numbered organoids.
//
// It covers the three middle stages of the per-image pipeline:
//
//  1. Segmentation: Segment fills enclosed holes and, when requested, runs a
//     distance-transform watershed that cuts touching blobs apart at their
//     narrowest necks.
//  2. Extraction: ExtractParticles labels 8-connected components, drops
//     border-touching, out-of-size and out-of-circularity ones, and measures
//     the rest.
//  3. Filtering: Criteria.Filter applies the biological thresholds and
//     assigns 1-based indices.
//
// # Ordering
//
// Components are discovered by a row-major raster scan, so a component's
// position is that of its top-most, then left-most pixel. Every later stage
// preserves that order: an OrganoidRecord with Index k is the k-th accepted
// region in discovery order, and annotation labels and report rows follow
// the same sequence.
//
// # Measurements
//
// All descriptors are in calibrated units:
//
//   - Area: pixel count times pixel width times pixel height
//   - Perimeter: length of the traced pixel-edge outline, with staircase
//     corners counted as diagonals
//   - Feret / MinFeret: largest and smallest caliper width of the convex hull
//     of the outline
//   - Major / Minor: axes of the ellipse with the same second moments and
//     the same area as the region
//   - Circularity: 4π·area/perimeter², capped at 1
//   - Roundness: 4·area/(π·major²)
//   - Solidity: area/convex hull area
//
// Holding the pixel mask fixed, areas scale with the square of the
// calibration factor and lengths scale linearly.
//
// # Coordinate System
//
// Pixel (x, y) covers the square from corner (x, y) to (x+1, y+1). Origin is
// the top-left, Y grows downward. Angles are reported counter-clockwise from
// the X axis with Y pointing up, in 0..180 degrees.
package detection
