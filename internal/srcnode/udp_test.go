package srcnode

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccczzc/AOI/frame"
)

func TestUDPTransportSendAndReceive(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	defer ln.Close()

	tr, err := NewUDPTransport(ln.LocalAddr().String())
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.SendFrame(frame.Frame{DataType: frame.TimeRequest, Timestamp: 1.0}))

	buf := make([]byte, 1024)
	require.NoError(t, ln.SetReadDeadline(time.Now().Add(time.Second)))
	n, peer, err := ln.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := frame.DecodeDatagram(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, frame.TimeRequest, got.DataType)

	_, err = ln.WriteToUDP([]byte(frame.BuildPoll(frame.General)), peer)
	require.NoError(t, err)

	var inbound []Inbound
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msgs, err := tr.Poll()
		require.NoError(t, err)
		if len(msgs) > 0 {
			inbound = msgs
			break
		}
	}
	require.Len(t, inbound, 1)
	assert.Equal(t, frame.BuildPoll(frame.General), inbound[0].ASCII)
}
