package srcnode

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/queue"
	"github.com/ccczzc/AOI/pkg/sensor"
)

type fakeTransport struct {
	inbound []Inbound
	sent    []frame.Frame
	ascii   []string
}

func (f *fakeTransport) Poll() ([]Inbound, error) {
	msgs := f.inbound
	f.inbound = nil
	return msgs, nil
}

func (f *fakeTransport) SendFrame(frm frame.Frame) error {
	f.sent = append(f.sent, frm)
	return nil
}

func (f *fakeTransport) SendASCII(msg string) error {
	f.ascii = append(f.ascii, msg)
	return nil
}

func newTestEngine(mode Mode, transport Transport) *Engine {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := Config{
		Mode:         mode,
		MaxPayload:   1400,
		SyncInterval: 5.0,
		SyncRounds:   2,
		Alpha:        0.02,
		QueuePolicy:  queue.PolicyKeepHistory,
		Sensors: []sensor.Config{
			{DataType: frame.General, PacketSize: 50, Rate: 10},
		},
		RNGSeed: 1,
	}
	return NewEngine(cfg, transport, log)
}

func TestEngineIssuesSyncRoundsOnFirstStep(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePolled, tr)
	e.Step(0)

	require.Len(t, tr.sent, 2, "sync_rounds=2 should fire on the first iteration")
	for _, f := range tr.sent {
		assert.Equal(t, frame.TimeRequest, f.DataType)
	}
}

func TestEngineDoesNotResyncBeforeInterval(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePolled, tr)
	e.Step(0)
	tr.sent = nil
	e.Step(1.0) // well under sync_interval=5.0
	assert.Empty(t, tr.sent)
}

func TestEnginePollDeliversLCFSTail(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePolled, tr)
	e.Step(0) // consumes the sync-round sends
	tr.sent = nil

	e.sensors[frame.General].queue.Push(queue.Update{Timestamp: 1.0, Payload: []byte("a")})
	e.sensors[frame.General].queue.Push(queue.Update{Timestamp: 2.0, Payload: []byte("b")})

	tr.inbound = []Inbound{{ASCII: frame.BuildPoll(frame.General)}}
	e.Step(1.0) // under sync_interval=5.0, so no sync round adds sends

	require.Len(t, tr.sent, 1)
	assert.Equal(t, []byte("b"), tr.sent[0].Payload, "LCFS drains the freshest (tail) update")
}

func TestEngineTimeResponseUpdatesOffset(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePolled, tr)
	before := e.Offset().Value()

	tr.inbound = []Inbound{{ASCII: frame.BuildTimeResponse(105.0, 100.0)}}
	e.Step(102.0)

	assert.NotEqual(t, before, e.Offset().Value())
}

func TestEnginePushModeSendsWithoutPoll(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePush, tr)
	e.Step(0)
	require.NotEmpty(t, tr.sent, "push mode must emit frames without any inbound POLL")
}

func TestEnginePolledModeNeverSendsDataWithoutPoll(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(ModePolled, tr)
	e.Step(0)
	for _, f := range tr.sent {
		assert.Equal(t, frame.TimeRequest, f.DataType, "polled mode must only send TIME_REQUESTs absent a POLL")
	}
}
