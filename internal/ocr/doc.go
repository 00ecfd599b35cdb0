// Package ocr reads back the index numbers drawn on annotated organoid
// images using Tesseract (via gosseract/v2).
//
// An audit crops the area around each placed label, keeps only the pixels in
// the label color, enlarges the glyphs and asks Tesseract for a single word
// made of digits. Comparing the reading with the index that was drawn shows
// whether labels stay legible on the exported image, for example where two
// organoids sit close together and their numbers overlap an outline.
//
// # Prerequisites
//
// Tesseract and its English language data must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// The Reader interface keeps the audit independent of the engine, so tests
// and callers without Tesseract can supply their own.
package ocr
