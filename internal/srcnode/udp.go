package srcnode

import (
	"net"
	"time"

	"github.com/ccczzc/AOI/frame"
)

// readinessProbe is the near-zero deadline used to turn a blocking socket
// read into a non-blocking readiness check.
const readinessProbe = time.Millisecond

// udpMaxDatagram bounds a single inbound read.
const udpMaxDatagram = 64 * 1024

// UDPTransport exchanges datagram-encoded Frames and raw ASCII control
// strings with a single destination over a connected UDP socket.
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport dials destAddr (host:port) from an ephemeral local port.
func NewUDPTransport(destAddr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", destAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }

// Poll performs one non-blocking read; the destination only ever sends the
// source raw ASCII control strings, never binary frames.
func (t *UDPTransport) Poll() ([]Inbound, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(readinessProbe)); err != nil {
		return nil, err
	}
	buf := make([]byte, udpMaxDatagram)
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return []Inbound{{ASCII: string(buf[:n])}}, nil
}

// SendFrame writes f using the datagram encoding.
func (t *UDPTransport) SendFrame(f frame.Frame) error {
	_, err := t.conn.Write(frame.EncodeDatagram(f))
	return err
}

// SendASCII writes msg as a raw datagram (no length prefix in datagram mode).
func (t *UDPTransport) SendASCII(msg string) error {
	_, err := t.conn.Write([]byte(msg))
	return err
}
