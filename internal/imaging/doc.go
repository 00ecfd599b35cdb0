// Package imaging covers the two ends of the per-image pipeline: getting a
// microscope export into a calibrated binary mask, and drawing the numbered
// result back onto the original picture.
//
// # Loading
//
// Decode and ImageCache accept PNG, JPEG, GIF and TIFF. Every load failure
// wraps ErrImageLoad so the batch can skip the file and move on.
//
// # Preprocessing
//
//  1. Calibrate attaches the physical pixel size and reduces the image to
//     8-bit grayscale. 16-bit sources are stretched over their own range.
//  2. A Thresholder picks the level. AutoThreshold runs an IsoData search on
//     the histogram; InteractiveThreshold hands that suggestion to an
//     operator and waits for the answer.
//  3. Binarize marks pixels strictly brighter than the level.
//  4. InvertMask swaps the classes so dark organoids on a light field become
//     foreground. It reports ErrInvertUnsupported for a mask with nothing to
//     swap, and the caller keeps the uninverted mask.
//
// # Annotation
//
// Annotate draws each organoid's outline and then its index onto a copy of
// the source and flattens the result into one NRGBA raster. Labels sit just
// above the bounding box: left edge at the box's left edge, text baseline
// LabelOffset pixels above its top edge.
//
// # Coordinate System
//
// Origin (0,0) is the top-left pixel, X grows rightward and Y downward.
// Rectangles are half-open: Min inclusive, Max exclusive.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Everything else works on values the
// caller owns and can run in parallel on different images.
package imaging
