package mxltime

import (
	"math/big"
	"time"
)

// Undefined is the sentinel returned by any operation on invalid input, and
// the reserved value that must never be passed as a valid Timestamp or Index.
const Undefined uint64 = 1<<64 - 1

// maxValidInput bounds Timestamps and Indices accepted as input to keep
// 128-bit intermediates safe: values must stay under half the
// 64-bit range.
const maxValidInput uint64 = 1 << 63

const nanosPerSecond uint64 = 1_000_000_000

// Timestamp is nanoseconds since the TAI epoch (1970-01-01T00:00:00 TAI,
// without UTC leap-second adjustment). Undefined is a reserved sentinel.
type Timestamp uint64

// Index is a monotonic grain or sample index at a given edit rate.
// Undefined is a reserved sentinel.
type Index uint64

// Rational is a numerator/denominator pair used for edit and sample rates.
type Rational struct {
	Numerator   uint32
	Denominator uint32
}

// Valid reports whether r can be used in clock arithmetic: both components
// must be non-zero and within the range the 128-bit math below stays safe
// for.
func (r Rational) Valid() bool {
	return r.Numerator >= 1 && r.Numerator <= 1_000_000_000 &&
		r.Denominator >= 1 && r.Denominator <= 1_000_000_000
}

// taiOffset is the fixed offset between Go's monotonic-adjusted wall clock
// (UTC-based) and TAI. As of 2017-01-01 TAI leads UTC by 37 seconds; MXL
// treats this as a fixed epoch offset rather than consulting a leap-second
// table, since the system only needs monotonicity through leap seconds, not
// calendar accuracy.
const taiOffset = 37 * time.Second

// Now returns the current TAI time as nanoseconds since the TAI epoch.
// It returns 0 on failure (there is no failure mode on platforms with a
// working wall clock, but the contract never panics or returns an error.
func Now() Timestamp {
	t := time.Now().Add(taiOffset)
	unixNanos := t.UnixNano()
	if unixNanos < 0 {
		return 0
	}
	return Timestamp(unixNanos)
}

// SleepForNs performs a best-effort monotonic sleep for the given number of
// nanoseconds. Negative or zero durations return immediately. It never
// panics.
func SleepForNs(ns int64) {
	if ns <= 0 {
		return
	}
	time.Sleep(time.Duration(ns))
}

var bigNanosPerSecond = new(big.Int).SetUint64(nanosPerSecond)
var bigMaxUint64 = new(big.Int).SetUint64(^uint64(0))

// mulDivRoundHalfUp computes floor((a*b + addend) / div) using exact
// arbitrary-precision arithmetic, returning (0, false) if the quotient does
// not fit in a uint64. This is the 128-bit-safe primitive behind
// TimestampToIndex and IndexToTimestamp.
func mulDivRoundHalfUp(a, b, addend, div uint64) (uint64, bool) {
	n := new(big.Int).SetUint64(a)
	n.Mul(n, new(big.Int).SetUint64(b))
	n.Add(n, new(big.Int).SetUint64(addend))
	d := new(big.Int).SetUint64(div)
	n.Div(n, d) // big.Int.Div truncates toward zero; operands are non-negative so this is floor.
	if n.Sign() < 0 || n.Cmp(bigMaxUint64) > 0 {
		return 0, false
	}
	return n.Uint64(), true
}

// TimestampToIndex maps a timestamp to the grain/sample index it falls into
// at rate, rounding half-up at the nanosecond level. It returns Undefined for
// an invalid rate or out-of-range/sentinel input.
func TimestampToIndex(rate Rational, ts Timestamp) Index {
	if !rate.Valid() || uint64(ts) == Undefined || uint64(ts) >= maxValidInput {
		return Index(Undefined)
	}

	num := uint64(rate.Numerator)
	denom := uint64(rate.Denominator)

	// (ts*num + 500_000_000*denom) / (1_000_000_000*denom)
	q, ok := mulDivRoundHalfUp(uint64(ts), num, 500_000_000*denom, nanosPerSecond*denom)
	if !ok || q == Undefined {
		return Index(Undefined)
	}
	return Index(q)
}

// IndexToTimestamp maps a grain/sample index to the timestamp of its start
// at rate, rounding half-up at the nanosecond level. It returns Undefined for
// an invalid rate or out-of-range/sentinel input.
func IndexToTimestamp(rate Rational, i Index) Timestamp {
	if !rate.Valid() || uint64(i) == Undefined || uint64(i) >= maxValidInput {
		return Timestamp(Undefined)
	}

	num := uint64(rate.Numerator)
	denom := uint64(rate.Denominator)

	// (i*denom*1e9 + num/2) / num
	n := new(big.Int).SetUint64(uint64(i))
	n.Mul(n, new(big.Int).SetUint64(denom))
	n.Mul(n, bigNanosPerSecond)
	n.Add(n, new(big.Int).SetUint64(num/2))
	n.Div(n, new(big.Int).SetUint64(num))
	if n.Sign() < 0 || n.Cmp(bigMaxUint64) > 0 {
		return Timestamp(Undefined)
	}
	q := n.Uint64()
	if q == Undefined {
		return Timestamp(Undefined)
	}
	return Timestamp(q)
}

// CurrentIndex returns the grain/sample index corresponding to Now() at rate.
func CurrentIndex(rate Rational) Index {
	return TimestampToIndex(rate, Now())
}

// NsUntilIndex returns the non-negative number of nanoseconds until index i
// is reached at rate. It returns 0 when i has already been reached, and also
// when rate or i is invalid.
func NsUntilIndex(i Index, rate Rational) int64 {
	target := IndexToTimestamp(rate, i)
	if uint64(target) == Undefined {
		return 0
	}
	now := Now()
	if uint64(target) <= uint64(now) {
		return 0
	}
	return int64(uint64(target) - uint64(now))
}
