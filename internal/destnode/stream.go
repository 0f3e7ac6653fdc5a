package destnode

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/rttinfo"
)

// rttSampleInterval rate-limits the TCP_INFO diagnostic sample: it's a
// cheap syscall, but there's no reason to take it more than a few times a
// second per connection.
const rttSampleInterval = 500 * time.Millisecond

// streamPeer is one accepted TCP connection from a source, with its own
// incremental frame decoder. The key it's associated with
// ("<source_id>_<type>") isn't known until the first frame arrives, since
// stream mode keys by (source_id, data_type) rather than address.
type streamPeer struct {
	conn        net.Conn
	dec         *frame.StreamDecoder
	key         string // empty until the first frame reveals source_id/data_type
	lastRTTSamp time.Time
}

// StreamTransport accepts TCP connections, one per source, and implements
// both ingress and PeerSender over whichever connection a given key was
// last seen on.
type StreamTransport struct {
	ln      net.Listener
	recv    *Receiver
	log     *logrus.Logger
	peers   map[string]*streamPeer // key -> peer
	conns   map[net.Conn]*streamPeer
	sampler rttinfo.Sampler
}

// NewStreamTransport listens on port for incoming source connections.
func NewStreamTransport(port int, log *logrus.Logger) (*StreamTransport, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("destnode: listening tcp :%d: %w", port, err)
	}
	return &StreamTransport{
		ln:    ln,
		log:   log,
		peers: make(map[string]*streamPeer),
		conns: make(map[net.Conn]*streamPeer),
	}, nil
}

// SetReceiver wires the Receiver this transport feeds decoded frames into.
func (t *StreamTransport) SetReceiver(r *Receiver) { t.recv = r }

// UnknownHits proxies the wired Receiver's count for Server's --strict check.
func (t *StreamTransport) UnknownHits() uint64 { return t.recv.UnknownHits() }

// Close releases the listener and every accepted connection.
func (t *StreamTransport) Close() error {
	for _, p := range t.conns {
		_ = p.conn.Close()
	}
	return t.ln.Close()
}

// acceptPending non-blockingly accepts any connection that's ready,
// registering it without yet assigning it a key.
func (t *StreamTransport) acceptPending() {
	if tl, ok := t.ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(readinessProbe))
	}
	conn, err := t.ln.Accept()
	if err != nil {
		return
	}
	p := &streamPeer{conn: conn, dec: frame.NewStreamDecoder()}
	t.conns[conn] = p
	t.log.WithField("remote", conn.RemoteAddr()).Debug("destnode: accepted stream connection")
}

// Poll performs one non-blocking sweep: accept any new connection, then
// read whatever is ready from every known connection and dispatch complete
// frames. It returns sealed=true if any dispatched frame completed a
// logical delivery this sweep.
func (t *StreamTransport) Poll(now float64) (sealed bool) {
	t.acceptPending()

	buf := make([]byte, 64*1024)
	for conn, p := range t.conns {
		t.maybeSampleRTT(p)
		_ = conn.SetReadDeadline(time.Now().Add(readinessProbe))
		n, err := conn.Read(buf)
		if n > 0 {
			p.dec.Feed(buf[:n])
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// no data ready this sweep, still drain any buffered frames
			} else {
				// reset/EOF: drop the connection and its reassembly state;
				// the source is expected to reconnect.
				t.log.WithField("source", p.key).Warn("destnode: stream connection reset, dropping")
				delete(t.conns, conn)
				if p.key != "" {
					delete(t.peers, p.key)
					if src, ok := t.recv.table.Get(p.key); ok {
						src.DropReassembly()
					}
				}
				_ = conn.Close()
				continue
			}
		}

		for {
			f, ok, derr := p.dec.Next()
			if derr != nil {
				t.recv.CountDrop()
				continue
			}
			if !ok {
				break
			}
			key := fmt.Sprintf("%d_%s", f.SourceID, f.DataType)
			if p.key == "" {
				p.key = key
			}
			t.peers[key] = p
			if t.recv.HandleFrame(key, now, f) {
				sealed = true
			}
		}
	}
	return sealed
}

// maybeSampleRTT takes a rate-limited TCP_INFO RTT sample for p, attaching
// it to the Source it's keyed to once the first frame has revealed that
// key. A sample failure (unsupported platform, no kernel support) is
// silently ignored — this is a best-effort diagnostic, never load-bearing
// for the protocol itself.
func (t *StreamTransport) maybeSampleRTT(p *streamPeer) {
	if p.key == "" || time.Since(p.lastRTTSamp) < rttSampleInterval {
		return
	}
	p.lastRTTSamp = time.Now()
	sample, err := t.sampler.Sample(p.conn)
	if err != nil {
		return
	}
	if src, ok := t.recv.table.Get(p.key); ok {
		rtt := sample.RTT
		src.RTTEstimate = &rtt
	}
}

// SendASCII implements PeerSender: writes msg, length-prefixed, to
// whichever connection key was last seen on.
func (t *StreamTransport) SendASCII(key string, msg string) error {
	p, ok := t.peers[key]
	if !ok {
		return fmt.Errorf("destnode: no known stream peer for %s", key)
	}
	_, err := p.conn.Write(frame.WrapASCIIStream(msg))
	return err
}

// SendPoll emits the ASCII POLL command for dt to key.
func (t *StreamTransport) SendPoll(key string, dt frame.DataType) error {
	return t.SendASCII(key, frame.BuildPoll(dt))
}
