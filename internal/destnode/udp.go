package destnode

import (
	"fmt"
	"net"
	"time"

	"github.com/ccczzc/AOI/frame"
)

// udpMaxDatagram bounds a single read; UDP datagrams never legitimately
// exceed this on the networks this testbed targets.
const udpMaxDatagram = 64 * 1024

// readinessProbe is the near-zero deadline used to turn a blocking socket
// read into a non-blocking readiness check: long enough to let the OS
// report readiness, short enough that it never blocks the single-threaded
// loop's other responsibilities.
const readinessProbe = time.Millisecond

// UDPTransport implements both ingress (poll-and-decode) and PeerSender
// (POLL/TIME_RESPONSE replies) over one shared UDP socket, keyed by the
// legacy address-keyed form "<ip:port>_<data_type>".
type UDPTransport struct {
	conn *net.UDPConn
	recv *Receiver
	// peers maps a key back to the remote address a POLL/TIME_RESPONSE
	// must be sent to; populated on first frame received from that key.
	peers map[string]*net.UDPAddr
}

// NewUDPTransport binds port on all local addresses and returns a
// transport ready to send on. A Receiver must be wired in with
// SetReceiver before Poll() is called.
func NewUDPTransport(port int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("destnode: listening udp :%d: %w", port, err)
	}
	return &UDPTransport{conn: conn, peers: make(map[string]*net.UDPAddr)}, nil
}

// SetReceiver wires the Receiver this transport feeds decoded frames into.
func (t *UDPTransport) SetReceiver(r *Receiver) { t.recv = r }

// UnknownHits proxies the wired Receiver's count for Server's --strict check.
func (t *UDPTransport) UnknownHits() uint64 { return t.recv.UnknownHits() }

// Close releases the underlying socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }

// keyFor derives the (legacy, address-keyed) table key for a datagram
// received from addr carrying dt.
func keyFor(addr *net.UDPAddr, dt frame.DataType) string {
	return fmt.Sprintf("%s_%s", addr.String(), dt)
}

// Poll performs one non-blocking readiness check and, if a datagram is
// waiting, decodes and dispatches it. It returns sealed=true if dispatching
// this datagram completed a logical delivery, the event-driven polling
// trigger.
func (t *UDPTransport) Poll(now float64) (sealed bool) {
	if err := t.conn.SetReadDeadline(time.Now().Add(readinessProbe)); err != nil {
		return false
	}
	buf := make([]byte, udpMaxDatagram)
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false
		}
		return false
	}

	f, derr := frame.DecodeDatagram(buf[:n])
	if derr != nil {
		t.recv.CountDrop()
		return false
	}

	key := keyFor(addr, f.DataType)
	t.peers[key] = addr
	return t.recv.HandleFrame(key, now, f)
}

// SendASCII implements PeerSender: writes msg as a raw UDP datagram to
// whichever address last sent a frame under key.
func (t *UDPTransport) SendASCII(key string, msg string) error {
	addr, ok := t.peers[key]
	if !ok {
		return fmt.Errorf("destnode: no known peer address for %s", key)
	}
	_, err := t.conn.WriteToUDP([]byte(msg), addr)
	return err
}

// SendPoll emits the ASCII POLL command for dt to key.
func (t *UDPTransport) SendPoll(key string, dt frame.DataType) error {
	return t.SendASCII(key, frame.BuildPoll(dt))
}
