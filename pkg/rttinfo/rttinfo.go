// Package rttinfo samples the kernel's TCP_INFO smoothed RTT estimate for
// stream-mode (TCP) connections. It is a purely diagnostic, read-only
// signal: congestion control is out of scope for this testbed, so nothing
// here ever feeds back into socket behavior — the sampled RTT is only
// ever surfaced on SourceState/metrics for comparison against the
// protocol's own age/weight accounting.
package rttinfo

import (
	"errors"
	"net"
	"time"
)

// ErrUnsupported is returned when RTT sampling isn't available for this
// connection or platform (UDP connections, non-Linux builds, or a kernel
// too old to support TCP_INFO).
var ErrUnsupported = errors.New("rttinfo: TCP_INFO unavailable for this connection")

// Sample is one point-in-time read of a TCP connection's kernel-estimated
// round-trip characteristics.
type Sample struct {
	RTT    time.Duration
	RTTVar time.Duration
}

// Sampler reads TCP_INFO from a net.Conn on demand. The zero value is
// ready to use.
type Sampler struct{}

// Sample returns the current smoothed RTT for conn, or ErrUnsupported if
// conn isn't a *net.TCPConn or the platform/kernel doesn't support it.
func (Sampler) Sample(conn net.Conn) (Sample, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return Sample{}, ErrUnsupported
	}
	return sampleTCPConn(tcpConn)
}
