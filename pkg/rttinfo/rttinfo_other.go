//go:build !linux

package rttinfo

import "net"

// sampleTCPConn has no TCP_INFO equivalent wired up on non-Linux platforms;
// sampling is simply unsupported there.
func sampleTCPConn(conn *net.TCPConn) (Sample, error) {
	return Sample{}, ErrUnsupported
}
