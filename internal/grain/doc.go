// Package grain implements the grain ring used by discrete flows: a
// fixed-slot circular buffer where a single writer opens, fills and commits
// grains by monotonically increasing index, and any number of readers fetch
// a specific index or block until a new one arrives.
package grain
