package frame

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramRoundTrip(t *testing.T) {
	cases := []Frame{
		{IsFragmented: false, DataType: General, Timestamp: 1234.5678, Payload: nil},
		{IsFragmented: true, DataType: Image, Timestamp: 0, Payload: []byte("hello world")},
		{IsFragmented: false, DataType: TimeRequest, Timestamp: -1.5, Payload: []byte{}},
	}
	for _, c := range cases {
		encoded := EncodeDatagram(c)
		got, err := DecodeDatagram(encoded)
		require.NoError(t, err)
		assert.Equal(t, c.IsFragmented, got.IsFragmented)
		assert.Equal(t, c.DataType, got.DataType)
		assert.Equal(t, c.Timestamp, got.Timestamp)
		if len(c.Payload) == 0 {
			assert.Empty(t, got.Payload)
		} else {
			assert.Equal(t, c.Payload, got.Payload)
		}
	}
}

func TestDecodeDatagramShortBuffer(t *testing.T) {
	_, err := DecodeDatagram([]byte{0, 1, 2})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeDatagramBadType(t *testing.T) {
	buf := EncodeDatagram(Frame{DataType: General})
	buf[1] = 0xFF
	_, err := DecodeDatagram(buf)
	assert.ErrorIs(t, err, ErrBadDataType)
}

func TestStreamRoundTripSingle(t *testing.T) {
	f := Frame{IsFragmented: true, DataType: Position, SourceID: 7, Timestamp: 42.125, Payload: []byte("fragment-data")}
	encoded := EncodeStream(f)

	dec := NewStreamDecoder()
	dec.Feed(encoded)
	got, ok, err := dec.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f, got)

	_, ok, err = dec.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestStreamRoundTripArbitraryChunking verifies that incremental decoding
// yields the same frame sequence regardless of how the underlying byte
// stream happens to be chunked.
func TestStreamRoundTripArbitraryChunking(t *testing.T) {
	frames := []Frame{
		{DataType: General, SourceID: 1, Timestamp: 1.0, Payload: []byte("aaaa")},
		{DataType: Inertial, SourceID: 1, Timestamp: 2.0, Payload: nil},
		{IsFragmented: true, DataType: Image, SourceID: 2, Timestamp: 3.5, Payload: make([]byte, 5000)},
	}
	rand.New(rand.NewSource(1)).Read(frames[2].Payload)

	var wire []byte
	for _, f := range frames {
		wire = append(wire, EncodeStream(f)...)
	}

	r := rand.New(rand.NewSource(42))
	dec := NewStreamDecoder()
	var got []Frame
	for pos := 0; pos < len(wire); {
		chunkSize := 1 + r.Intn(7)
		end := min(pos+chunkSize, len(wire))
		dec.Feed(wire[pos:end])
		pos = end
		for {
			f, ok, err := dec.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, f)
		}
	}
	require.Equal(t, len(frames), len(got))
	for i := range frames {
		assert.Equal(t, frames[i], got[i])
	}
}

func TestStreamDecoderResyncsOnBadLength(t *testing.T) {
	good := EncodeStream(Frame{DataType: General, Timestamp: 9})

	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF} // absurd length, triggers resync
	dec := NewStreamDecoder()
	var resyncs int
	dec.OnResync(func() { resyncs++ })
	dec.Feed(append(garbage, good...))

	f, ok, err := dec.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, General, f.DataType)
	assert.Greater(t, resyncs, 0)
}

func TestNextMessageDemultiplexesASCIIAndFrames(t *testing.T) {
	f := Frame{DataType: Position, SourceID: 3, Timestamp: 5.0, Payload: []byte("x")}

	var wire []byte
	wire = append(wire, WrapASCIIStream(BuildPoll(Image))...)
	wire = append(wire, EncodeStream(f)...)
	wire = append(wire, WrapASCIIStream("TIME_SYNC")...)

	dec := NewStreamDecoder()
	dec.Feed(wire)

	m1, ok, err := dec.NextMessage()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, m1.IsASCII)
	assert.Equal(t, BuildPoll(Image), m1.ASCII)

	m2, ok, err := dec.NextMessage()
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, m2.IsASCII)
	assert.Equal(t, f, m2.Frame)

	m3, ok, err := dec.NextMessage()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, IsTimeSync(m3.ASCII))

	_, ok, err = dec.NextMessage()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestASCIICommands(t *testing.T) {
	s := BuildPoll(Image)
	dt, ok := ParsePoll(s)
	require.True(t, ok)
	assert.Equal(t, Image, dt)

	assert.True(t, IsTimeSync("TIME_SYNC"))
	assert.False(t, IsTimeSync("TIME_SYNCX"))

	resp := BuildTimeResponse(100.5, 99.25)
	tDest, t1, ok := ParseTimeResponse(resp)
	require.True(t, ok)
	assert.InDelta(t, 100.5, tDest, 1e-9)
	assert.InDelta(t, 99.25, t1, 1e-9)
}
