// Package server implements the MCP (Model Context Protocol) server for
// organoid counting.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line, and
// answers initialize, tools/list, tools/call and ping.
//
// # Available Tools
//
//   - image_load: Load an image and report its size, format and bit depth
//   - image_evict: Drop one image, or all of them, from the decode cache
//   - organoid_analyze: Count and measure the organoids in one image
//   - organoid_batch: Process a directory tree and write the CSV report
//   - organoid_verify_labels: Read drawn indices back with OCR
//
// The organoid tools start from the server's configuration and accept
// per-call overrides for the segmentation and calibration parameters. The
// threshold is always chosen automatically; interactive confirmation needs
// a terminal and is only offered by the command line.
//
// # Image Caching
//
// Decoded images are cached by path until image_evict drops them, so
// repeated analyses of the same file with different parameters skip the
// disk. Batch runs read their sources directly and bypass the cache.
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC errors with code -32000 and the Go
// error string in data. Malformed tools/call parameters return -32602.
package server
