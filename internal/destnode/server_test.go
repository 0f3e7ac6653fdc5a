package destnode

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/sched"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *UDPTransport) {
	t.Helper()
	transport, err := NewUDPTransport(0)
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg.AgeRecordDir = t.TempDir()
	if cfg.RunningPeriod == 0 {
		cfg.RunningPeriod = 100
	}
	return NewServer(cfg, transport, sched.MAF{}, log), transport
}

func TestNewServerWiresReceiverIntoTransport(t *testing.T) {
	s, transport := newTestServer(t, Config{PollInterval: 1})
	require.NotNil(t, transport.recv, "NewServer must call transport.SetReceiver")
	assert.Same(t, s.table, transport.recv.table)
	assert.Same(t, s.meter, transport.recv.meter)
}

func TestServerAbortsUnderStrictOnUnknownSource(t *testing.T) {
	s, transport := newTestServer(t, Config{
		PollInterval: 1,
		KnownSources: []string{"declared"},
		Strict:       true,
	})

	destAddr := transport.conn.LocalAddr().(*net.UDPAddr)
	client, err := net.DialUDP("udp", nil, destAddr)
	require.NoError(t, err)
	defer client.Close()

	f := frame.Frame{DataType: frame.General, Timestamp: 1.0, Payload: []byte("hi")}
	_, err = client.Write(frame.EncodeDatagram(f))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = s.Run(ctx)
	require.Error(t, err, "an unknown source under --strict must abort the run")
}

func TestServerCompletesNormallyWithoutStrict(t *testing.T) {
	s, _ := newTestServer(t, Config{PollInterval: 1, RunningPeriod: 0.05})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}
