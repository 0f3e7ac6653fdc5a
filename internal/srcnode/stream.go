package srcnode

import (
	"net"
	"time"

	"github.com/ccczzc/AOI/frame"
)

// StreamTransport exchanges length-prefixed Frames and ASCII control
// messages with the destination over one persistent TCP connection,
// tagging every outbound Frame with this source's configured ID: stream
// mode is keyed by (source_id, data_type) rather than address.
type StreamTransport struct {
	conn     net.Conn
	sourceID uint8
	dec      *frame.StreamDecoder
}

// NewStreamTransport dials destAddr and identifies outbound frames as
// sourceID.
func NewStreamTransport(destAddr string, sourceID uint8) (*StreamTransport, error) {
	conn, err := net.Dial("tcp", destAddr)
	if err != nil {
		return nil, err
	}
	return &StreamTransport{conn: conn, sourceID: sourceID, dec: frame.NewStreamDecoder()}, nil
}

// Close releases the underlying connection.
func (t *StreamTransport) Close() error { return t.conn.Close() }

// Poll performs one non-blocking read and demultiplexes any complete ASCII
// control messages that arrived (the destination never sends the source a
// binary Frame, so non-ASCII entries are dropped with no further action).
func (t *StreamTransport) Poll() ([]Inbound, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readinessProbe))
	buf := make([]byte, 64*1024)
	n, err := t.conn.Read(buf)
	if n > 0 {
		t.dec.Feed(buf[:n])
	}
	if err != nil {
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			return nil, err
		}
	}

	var inbound []Inbound
	for {
		msg, ok, derr := t.dec.NextMessage()
		if derr != nil {
			continue
		}
		if !ok {
			break
		}
		if msg.IsASCII {
			inbound = append(inbound, Inbound{ASCII: msg.ASCII})
		}
	}
	return inbound, nil
}

// SendFrame writes f using the stream encoding, tagged with this source's ID.
func (t *StreamTransport) SendFrame(f frame.Frame) error {
	f.SourceID = t.sourceID
	_, err := t.conn.Write(frame.EncodeStream(f))
	return err
}

// SendASCII writes msg, length-prefixed, to the destination.
func (t *StreamTransport) SendASCII(msg string) error {
	_, err := t.conn.Write(frame.WrapASCIIStream(msg))
	return err
}
