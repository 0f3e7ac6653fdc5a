package frame

import (
	"encoding/binary"
)

// StreamDecoder incrementally reassembles length-prefixed frames out of a
// byte stream, so callers can feed it arbitrarily-sized chunks (one read()
// at a time) and get back whatever complete frames have accumulated,
// regardless of where read() happened to split them.
//
// Malformed entries (a length prefix outside the plausible range, or a
// body whose header does not parse) are dropped and the buffer
// resynchronizes by advancing a single byte, per the codec's failure
// semantics. A plausible length whose bytes have not all arrived is
// waited for.
type StreamDecoder struct {
	buf []byte
	// onResync, if set, is invoked once per dropped byte during
	// resynchronization (used for drop-counter bookkeeping upstream).
	onResync func()
}

// NewStreamDecoder returns an empty decoder.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// OnResync registers a callback invoked every time the decoder discards a
// byte while resynchronizing after a malformed header.
func (d *StreamDecoder) OnResync(fn func()) {
	d.onResync = fn
}

// Feed appends chunk to the internal buffer. Call Next in a loop afterwards
// to drain any frames that are now complete.
func (d *StreamDecoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next attempts to decode one frame from the buffered bytes. It returns
// ok=false (with a nil error) when fewer bytes are buffered than needed for
// the next frame — callers should stop looping and wait for more data.
func (d *StreamDecoder) Next() (f Frame, ok bool, err error) {
	for {
		if len(d.buf) < LengthPrefixSize {
			return Frame{}, false, nil
		}
		length := binary.BigEndian.Uint32(d.buf[0:LengthPrefixSize])
		if length < StreamHeaderSize || length > maxFrameLength {
			d.resyncOne()
			continue
		}
		total := LengthPrefixSize + int(length)
		if len(d.buf) < total {
			return Frame{}, false, nil
		}
		body := d.buf[LengthPrefixSize:total]
		parsed, derr := decodeStreamBody(body)
		if derr != nil {
			d.resyncOne()
			continue
		}
		d.buf = d.buf[total:]
		return parsed, true, nil
	}
}

// Message is one demultiplexed stream entry: either a binary Frame or one
// of the ASCII control strings (POLL/TIME_SYNC/TIME_RESPONSE) that ride the
// same length-prefixed framing. The two are told apart by the first body
// byte: is_fragmented is always 0 or 1, while every ASCII command starts
// with a letter.
type Message struct {
	IsASCII bool
	ASCII   string
	Frame   Frame
}

// NextMessage is like Next but demultiplexes ASCII control strings from
// binary Frames sharing the same stream, for transports where both ride
// the same length-prefixed connection (stream-mode POLL/TIME_SYNC/
// TIME_RESPONSE alongside Frame payloads).
func (d *StreamDecoder) NextMessage() (msg Message, ok bool, err error) {
	for {
		if len(d.buf) < LengthPrefixSize {
			return Message{}, false, nil
		}
		length := binary.BigEndian.Uint32(d.buf[0:LengthPrefixSize])
		if length == 0 || length > maxFrameLength {
			d.resyncOne()
			continue
		}
		total := LengthPrefixSize + int(length)
		if len(d.buf) < total {
			return Message{}, false, nil
		}
		body := d.buf[LengthPrefixSize:total]

		if isASCIIControlBody(body) {
			d.buf = d.buf[total:]
			return Message{IsASCII: true, ASCII: string(body)}, true, nil
		}

		if len(body) < StreamHeaderSize {
			d.resyncOne()
			continue
		}
		parsed, derr := decodeStreamBody(body)
		if derr != nil {
			d.resyncOne()
			continue
		}
		d.buf = d.buf[total:]
		return Message{Frame: parsed}, true, nil
	}
}

// isASCIIControlBody reports whether body looks like one of the protocol's
// ASCII control strings rather than a binary stream-frame header: every
// Frame header starts with the is_fragmented byte, which is always 0 or 1,
// while "POLL:", "TIME_SYNC" and "TIME_RESPONSE:" all start with a byte
// outside that range.
func isASCIIControlBody(body []byte) bool {
	return len(body) > 0 && body[0] > 1
}

// maxFrameLength bounds a single stream frame to guard against a corrupted
// length prefix causing unbounded buffering.
const maxFrameLength = 16 * 1024 * 1024

func (d *StreamDecoder) resyncOne() {
	if len(d.buf) == 0 {
		return
	}
	d.buf = d.buf[1:]
	if d.onResync != nil {
		d.onResync()
	}
}

// Buffered reports how many undecoded bytes are currently held.
func (d *StreamDecoder) Buffered() int {
	return len(d.buf)
}
