package mxltime_test

import (
	"testing"

	"github.com/moleksy/mxl/pkg/mxltime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRationalValid(t *testing.T) {
	assert.True(t, mxltime.Rational{Numerator: 30000, Denominator: 1001}.Valid())
	assert.False(t, mxltime.Rational{Numerator: 0, Denominator: 1}.Valid())
	assert.False(t, mxltime.Rational{Numerator: 1, Denominator: 0}.Valid())
	assert.False(t, mxltime.Rational{Numerator: 1_000_000_001, Denominator: 1}.Valid())
}

func Test2997fpsScenario(t *testing.T) {
	rate := mxltime.Rational{Numerator: 30000, Denominator: 1001}

	require.EqualValues(t, 33_366_667, mxltime.IndexToTimestamp(rate, 1))
	require.EqualValues(t, 1, mxltime.TimestampToIndex(rate, 33_366_667))
	require.EqualValues(t, 0, mxltime.TimestampToIndex(rate, 0))
}

func TestRoundTripIndexSample(t *testing.T) {
	rates := []mxltime.Rational{
		{Numerator: 25, Denominator: 1},
		{Numerator: 30000, Denominator: 1001},
		{Numerator: 60000, Denominator: 1001},
		{Numerator: 48000, Denominator: 1},
	}
	for _, rate := range rates {
		for i := mxltime.Index(0); i < 5000; i++ {
			ts := mxltime.IndexToTimestamp(rate, i)
			require.NotEqualValues(t, mxltime.Undefined, ts)
			got := mxltime.TimestampToIndex(rate, ts)
			require.Equalf(t, i, got, "rate=%+v i=%d ts=%d", rate, i, ts)
		}
	}
}

func TestInvalidRateReturnsUndefined(t *testing.T) {
	bad := mxltime.Rational{}
	assert.EqualValues(t, mxltime.Undefined, mxltime.TimestampToIndex(bad, 100))
	assert.EqualValues(t, mxltime.Undefined, mxltime.IndexToTimestamp(bad, 100))
}

func TestSentinelInputRejected(t *testing.T) {
	rate := mxltime.Rational{Numerator: 25, Denominator: 1}
	assert.EqualValues(t, mxltime.Undefined, mxltime.TimestampToIndex(rate, mxltime.Timestamp(mxltime.Undefined)))
	assert.EqualValues(t, mxltime.Undefined, mxltime.IndexToTimestamp(rate, mxltime.Index(mxltime.Undefined)))
}

func TestOutOfRangeInputRejected(t *testing.T) {
	rate := mxltime.Rational{Numerator: 25, Denominator: 1}
	huge := mxltime.Timestamp(1 << 63)
	assert.EqualValues(t, mxltime.Undefined, mxltime.TimestampToIndex(rate, huge))
}

func TestCurrentIndexAdvances(t *testing.T) {
	rate := mxltime.Rational{Numerator: 1_000_000, Denominator: 1}
	first := mxltime.CurrentIndex(rate)
	mxltime.SleepForNs(2_000_000)
	second := mxltime.CurrentIndex(rate)
	assert.GreaterOrEqual(t, uint64(second), uint64(first))
}

func TestNsUntilIndexNeverNegative(t *testing.T) {
	rate := mxltime.Rational{Numerator: 25, Denominator: 1}
	past := mxltime.TimestampToIndex(rate, 1)
	assert.EqualValues(t, 0, mxltime.NsUntilIndex(past, rate))
}

func TestSleepForNsNonPositiveNoOp(t *testing.T) {
	mxltime.SleepForNs(0)
	mxltime.SleepForNs(-5)
}
