// Package batch drives organoid counting over a whole input tree.
//
// A Source yields (group, filename, bytes) items. The Pipeline turns one item
// into numbered organoid records and an annotated image; the Runner fans
// items out to workers and commits results in source order, writing one
// report block and one annotated PNG per image.
//
// Failures are isolated per image: an unreadable or undecodable file is
// logged and skipped, and nothing already written is revised. Only an
// unwritable output location, a report write error or cancellation stops a
// batch.
package batch
