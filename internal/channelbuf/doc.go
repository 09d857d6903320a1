// Package channelbuf implements the per-channel sample ring backing
// continuous flows: writers commit a monotonic range of samples per
// channel, readers request a range and get a view of it, wrapping across
// the ring's end when needed.
package channelbuf
