// Package srcnode implements the source side of the polling protocol: the
// single-threaded cooperative loop that issues clock-sync rounds, reacts to
// POLLs, paces sensor generation, and (for push-mode baselines) sends on
// its own cadence.
package srcnode

import (
	"github.com/sirupsen/logrus"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/queue"
	"github.com/ccczzc/AOI/pkg/sensor"
	"github.com/ccczzc/AOI/pkg/timesync"
)

// Mode selects how a sensor's queue is drained: Polled sources only send
// when a POLL grants them one transmission (MAF/WiFresh); Push sources send
// on their own cadence with no destination involvement (FCFS baselines).
type Mode int

const (
	ModePolled Mode = iota
	ModePush
)

// Transport is what Engine needs to exchange frames and ASCII control
// messages with the destination, independent of UDP vs. stream framing.
type Transport interface {
	// Poll performs one non-blocking sweep and returns whatever inbound
	// messages are ready.
	Poll() ([]Inbound, error)
	SendFrame(f frame.Frame) error
	SendASCII(msg string) error
}

// Inbound is one ASCII control string received from the destination. The
// protocol never sends the source a binary Frame, so none is carried here.
type Inbound struct {
	ASCII string
}

// sensorState bundles one sensor's producer and dual queue.
type sensorState struct {
	producer *sensor.Producer
	queue    *queue.Dual
}

// Engine drives one source's event loop.
type Engine struct {
	mode         Mode
	maxPayload   int
	syncInterval float64
	syncRounds   int
	lastSync     float64
	hasSynced    bool

	offset    *timesync.Offset
	transport Transport
	sensors   map[frame.DataType]*sensorState
	log       *logrus.Logger
}

// Config configures a new Engine.
type Config struct {
	Mode         Mode
	MaxPayload   int
	SyncInterval float64
	SyncRounds   int
	Alpha        float64
	QueuePolicy  queue.Policy
	Sensors      []sensor.Config
	RNGSeed      uint64
}

// NewEngine builds an Engine over transport, wiring up one sensorState per
// configured sensor.
func NewEngine(cfg Config, transport Transport, log *logrus.Logger) *Engine {
	sensors := make(map[frame.DataType]*sensorState, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		sensors[sc.DataType] = &sensorState{
			producer: sensor.NewProducer(sc, cfg.RNGSeed+uint64(i)),
			queue:    queue.New(cfg.QueuePolicy),
		}
	}
	return &Engine{
		mode:         cfg.Mode,
		maxPayload:   cfg.MaxPayload,
		syncInterval: cfg.SyncInterval,
		syncRounds:   cfg.SyncRounds,
		offset:       timesync.NewOffset(cfg.Alpha),
		transport:    transport,
		sensors:      sensors,
		log:          log,
	}
}

// Offset exposes the smoothed clock offset, e.g. for diagnostics.
func (e *Engine) Offset() *timesync.Offset { return e.offset }

// Step runs one loop iteration at wall-clock now, in four ordered steps:
// clock sync, inbound dispatch, sensor generation, then (push mode only)
// sending.
func (e *Engine) Step(now float64) {
	e.maybeSync(now)
	e.drainInbound(now)
	e.generateAll(now)
	if e.mode == ModePush {
		e.pushAll(now)
	}
}

// maybeSync issues sync_rounds back-to-back TIME_REQUESTs if syncInterval
// has elapsed since the last sync epoch.
func (e *Engine) maybeSync(now float64) {
	if e.hasSynced && now-e.lastSync < e.syncInterval {
		return
	}
	e.lastSync = now
	e.hasSynced = true
	for i := 0; i < e.syncRounds; i++ {
		req := frame.Frame{DataType: frame.TimeRequest, Timestamp: now}
		if err := e.transport.SendFrame(req); err != nil {
			e.log.WithError(err).Warn("srcnode: sending time request")
			return
		}
	}
}

// drainInbound dispatches every inbound message ready this iteration: POLL
// drains the targeted sensor's queue, TIME_RESPONSE updates the smoothed
// offset, TIME_SYNC triggers the destination-initiated reply variant.
func (e *Engine) drainInbound(now float64) {
	msgs, err := e.transport.Poll()
	if err != nil {
		e.log.WithError(err).Warn("srcnode: polling transport")
		return
	}
	for _, m := range msgs {
		e.dispatch(now, m.ASCII)
	}
}

func (e *Engine) dispatch(now float64, msg string) {
	if dt, ok := frame.ParsePoll(msg); ok {
		e.servePoll(now, dt)
		return
	}
	if tDest, t1, ok := frame.ParseTimeResponse(msg); ok {
		theta := timesync.InstantaneousOffset(t1, tDest, now)
		e.offset.Update(theta)
		return
	}
	if frame.IsTimeSync(msg) {
		resp := frame.BuildTimeResponse(now, now)
		if err := e.transport.SendASCII(resp); err != nil {
			e.log.WithError(err).Warn("srcnode: replying to time sync")
		}
		return
	}
	e.log.WithField("message", msg).Warn("srcnode: unrecognized control message")
}

// servePoll implements the ordered POLL decision tree for the targeted
// sensor, sending exactly one frame.
func (e *Engine) servePoll(now float64, dt frame.DataType) {
	s, ok := e.sensors[dt]
	if !ok {
		e.log.WithField("data_type", dt).Warn("srcnode: poll for unconfigured sensor")
		return
	}
	f := s.queue.Drain(e.maxPayload, e.offset.Value(), e.offset.Apply(now))
	f.DataType = dt
	if err := e.transport.SendFrame(f); err != nil {
		e.log.WithError(err).Warn("srcnode: sending polled frame")
	}
}

// generateAll invokes every sensor's rate-gated producer.
func (e *Engine) generateAll(now float64) {
	for _, s := range e.sensors {
		if u, ok := s.producer.Generate(now); ok {
			s.queue.Push(u)
		}
	}
}

// pushAll implements push-mode sending for FCFS baselines: drain one item
// per non-empty sensor and send it. Drain consumes the item before the
// send, so on a transport error the item is logged and lost; it is not
// re-queued or resent on a later iteration.
func (e *Engine) pushAll(now float64) {
	for dt, s := range e.sensors {
		if s.queue.LCFSDepth() == 0 && s.queue.FCFSDepth() == 0 {
			continue
		}
		f := s.queue.Drain(e.maxPayload, e.offset.Value(), e.offset.Apply(now))
		f.DataType = dt
		if err := e.transport.SendFrame(f); err != nil {
			e.log.WithError(err).Warn("srcnode: push-mode send")
		}
	}
}
