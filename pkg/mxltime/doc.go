// Package mxltime provides the TAI-aligned monotonic clock and the
// edit-rate arithmetic that maps between wall-clock Timestamps and integer
// grain/sample Indices.
//
// # TAI, not UTC
//
// MXL indices must stay monotonic through leap seconds, so the clock is
// aligned to TAI (International Atomic Time) rather than UTC: no leap-second
// adjustment is ever applied. Platforms without a native TAI clock source
// approximate it with a monotonic clock plus a fixed epoch offset.
//
// # Rounding
//
// TimestampToIndex and IndexToTimestamp round half-up at the nanosecond
// level and form a round trip for every valid index: for all i in range,
// TimestampToIndex(rate, IndexToTimestamp(rate, i)) == i.
package mxltime
