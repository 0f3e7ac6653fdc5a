package sensor

import (
	"testing"

	"github.com/ccczzc/AOI/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsRatePaced(t *testing.T) {
	p := NewProducer(Config{DataType: frame.General, PacketSize: 50, Rate: 10}, 1)

	u, ok := p.Generate(0.0)
	require.True(t, ok)
	assert.Equal(t, 0.0, u.Timestamp)
	assert.Len(t, u.Payload, 40)

	_, ok = p.Generate(0.05) // within the 0.1s interval
	assert.False(t, ok)

	u2, ok := p.Generate(0.1)
	require.True(t, ok)
	assert.Equal(t, 0.1, u2.Timestamp)
}

func TestGeneratePayloadSizeClampedNonNegative(t *testing.T) {
	p := NewProducer(Config{DataType: frame.General, PacketSize: 2, Rate: 1}, 1)
	u, ok := p.Generate(0)
	require.True(t, ok)
	assert.Empty(t, u.Payload)
}
