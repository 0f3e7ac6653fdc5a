package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainEmptyBeacon(t *testing.T) {
	d := New(PolicyKeepHistory)
	f := d.Drain(1400, 0, 123.0)
	assert.False(t, f.IsFragmented)
	assert.Equal(t, 123.0, f.Timestamp)
	assert.Empty(t, f.Payload)
}

func TestLCFSFreshnessTakesTail(t *testing.T) {
	d := New(PolicyKeepHistory)
	d.Push(Update{Timestamp: 1.0, Payload: []byte("old")})
	d.Push(Update{Timestamp: 2.0, Payload: []byte("new")})

	f := d.Drain(1400, 0, 0)
	require.False(t, f.IsFragmented)
	assert.Equal(t, 2.0, f.Timestamp)
	assert.Equal(t, []byte("new"), f.Payload)
}

func TestMAFPolicyClearsLCFSOnDrain(t *testing.T) {
	d := New(PolicyClearOnDrain)
	d.Push(Update{Timestamp: 1.0, Payload: []byte("old")})
	d.Push(Update{Timestamp: 2.0, Payload: []byte("new")})
	require.Equal(t, 2, d.LCFSDepth())

	d.Drain(1400, 0, 0)
	assert.Equal(t, 0, d.LCFSDepth())
}

func TestKeepHistoryPolicyDiscardsOnlyTail(t *testing.T) {
	d := New(PolicyKeepHistory)
	d.Push(Update{Timestamp: 1.0})
	d.Push(Update{Timestamp: 2.0})
	d.Drain(1400, 0, 0)
	assert.Equal(t, 1, d.LCFSDepth())
}

func TestFragmentationOrderingAndTimestamp(t *testing.T) {
	d := New(PolicyKeepHistory)
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	d.Push(Update{Timestamp: 10.0, Payload: payload})

	first := d.Drain(1400, 0.5, 0)
	require.True(t, first.IsFragmented)
	assert.Equal(t, 10.5, first.Timestamp)
	assert.Equal(t, payload[:1400], first.Payload)

	var reassembled []byte
	reassembled = append(reassembled, first.Payload...)

	for i := 0; i < 3; i++ {
		next := d.Drain(1400, 0.5, 0)
		assert.Equal(t, 10.5, next.Timestamp, "every fragment carries the original (offset-corrected) timestamp")
		reassembled = append(reassembled, next.Payload...)
		if i < 2 {
			assert.True(t, next.IsFragmented)
		} else {
			assert.False(t, next.IsFragmented, "last fragment clears the flag")
		}
	}
	assert.Equal(t, payload, reassembled)

	// fcfs now empty; next drain falls through to an empty beacon.
	beacon := d.Drain(1400, 0.5, 42.0)
	assert.Equal(t, 42.0, beacon.Timestamp)
	assert.Empty(t, beacon.Payload)
}

func TestFragmentQueueDrainedBeforeNewLCFSConsidered(t *testing.T) {
	d := New(PolicyKeepHistory)
	payload := make([]byte, 3000)
	d.Push(Update{Timestamp: 1.0, Payload: payload})
	d.Drain(1400, 0, 0) // starts fragmenting, 1 of 3 fragments sent
	require.Equal(t, 2, d.FCFSDepth())

	// a newer update arrives mid-transmission
	d.Push(Update{Timestamp: 2.0, Payload: []byte("new")})

	next := d.Drain(1400, 0, 0)
	assert.True(t, next.IsFragmented, "fcfs fragments must finish before lcfs is touched")
	assert.Equal(t, 1.0, next.Timestamp)
}
