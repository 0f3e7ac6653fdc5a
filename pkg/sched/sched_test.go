package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStats(key string, lastSystime, approxAgeHOL float64) *SourceStats {
	return &SourceStats{
		Key:                 key,
		LastSystimeReceived: lastSystime,
		ApproxAgeHOL:        approxAgeHOL,
		Polls:               NewWindow(),
		Receipts:            NewWindow(),
	}
}

func TestMAFSelectsMinimumLastSystime(t *testing.T) {
	a := newStats("a", 10, 0)
	b := newStats("b", 3, 0)
	c := newStats("c", 7, 0)

	chosen, ok := MAF{}.Select(100, 0.5, []*SourceStats{a, b, c})
	require.True(t, ok)
	assert.Equal(t, "b", chosen.Key)
}

func TestMAFTieBrokenByInsertionOrder(t *testing.T) {
	a := newStats("a", 5, 0)
	b := newStats("b", 5, 0)
	chosen, ok := MAF{}.Select(100, 0.5, []*SourceStats{a, b})
	require.True(t, ok)
	assert.Equal(t, "a", chosen.Key, "first in insertion order must win ties")
}

func TestWiFreshWeightNonNegativeAndZeroIffDeltaNonPositive(t *testing.T) {
	now := 100.0
	s := newStats("s", 100.0, 0) // delta = now - last - hol = 0
	w := Weight(now, 0.5, s)
	assert.Equal(t, 0.0, w)

	s2 := newStats("s2", 50.0, 0) // delta = 50 > 0
	w2 := Weight(now, 0.5, s2)
	assert.Greater(t, w2, 0.0)

	s3 := newStats("s3", 150.0, 0) // delta = -50 < 0 -> weight 0
	w3 := Weight(now, 0.5, s3)
	assert.Equal(t, 0.0, w3)
}

func TestWiFreshNeverPolledHasLaplaceSmoothedSuccessRatioOfOne(t *testing.T) {
	s := newStats("s", 0, 0)
	// p = (0+1)/(0+1) = 1 exactly when no polls or receipts are recorded.
	_ = Weight(100, 0.5, s)
	p := float64(s.Receipts.Len()+1) / float64(s.Polls.Len()+1)
	assert.Equal(t, 1.0, p)
}

func TestWiFreshSelectsLargestWeight(t *testing.T) {
	low := newStats("low", 99, 0)  // delta = 1
	high := newStats("high", 0, 0) // delta = 100
	chosen, ok := WiFresh{}.Select(100, 0.5, []*SourceStats{low, high})
	require.True(t, ok)
	assert.Equal(t, "high", chosen.Key)
}

func TestWindowExpiration(t *testing.T) {
	w := NewWindow()
	w.Append(0.0)
	w.Append(0.4)
	w.Append(0.9)
	w.Expire(0.5) // window_period 0.5 cutoff at t=1.0 means anything < 0.5 expires
	assert.Equal(t, 1, w.Len())
}

func TestPacerPacesAndRespondsToSealedDelivery(t *testing.T) {
	p := NewPacer(0.3)
	assert.True(t, p.ShouldPoll(0, false), "first call always polls")
	p.RecordPoll(0)

	assert.False(t, p.ShouldPoll(0.1, false), "within pacing interval, no delivery")
	assert.True(t, p.ShouldPoll(0.1, true), "sealed delivery polls immediately")

	p.RecordPoll(0.1)
	assert.True(t, p.ShouldPoll(0.4, false), "pacing deadline elapsed")
}

func TestNoneNeverSelects(t *testing.T) {
	_, ok := None{}.Select(0, 0, []*SourceStats{newStats("a", 0, 0)})
	assert.False(t, ok)
}
