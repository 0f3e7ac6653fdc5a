package destnode

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/agemeter"
	"github.com/ccczzc/AOI/pkg/metrics"
	"github.com/ccczzc/AOI/pkg/sched"
)

// Transport is what Server needs from either UDPTransport or
// StreamTransport: a non-blocking ingress sweep, the ability to send a POLL
// to a known source, and the wiring hooks NewServer needs to attach the
// Receiver it owns.
type Transport interface {
	Poll(now float64) (sealed bool)
	SendPoll(key string, dt frame.DataType) error
	Close() error
	SetReceiver(r *Receiver)
	UnknownHits() uint64
}

// Config holds the tunables Server needs from pkg/config.Protocol.
type Config struct {
	PollInterval  float64
	WindowPeriod  float64
	RunningPeriod float64
	AgeRecordDir  string
	MetricsListen string
	// KnownSources, if non-empty, is the declared --sources allow-list: any
	// frame arriving from a key outside this set is logged and dropped.
	// Empty means accept any source, registering it on first contact.
	KnownSources []string
	// Strict, if set, makes a nonzero count of such rejections abort the
	// run instead of merely being logged and dropped.
	Strict bool
}

// Server drives the destination's single-threaded cooperative loop: each
// iteration sweeps the transport for ready frames, and if the scheduler's
// pacing rule says to, emits one POLL.
type Server struct {
	cfg       Config
	table     *Table
	meter     *agemeter.Meter
	transport Transport
	receiver  *Receiver
	selector  sched.Selector
	pacer     *sched.Pacer
	log       *logrus.Logger
	startWall time.Time
}

// NewServer assembles a Server, along with the Table/Meter/Receiver the
// transport will feed, and wires the Receiver into transport. selector is
// typically sched.MAF{}, sched.WiFresh{}, or sched.None{} (which disables
// polling entirely, for the push-mode FCFS baselines).
func NewServer(cfg Config, transport Transport, selector sched.Selector, log *logrus.Logger) *Server {
	table := NewTable()
	meter := agemeter.New(0)
	receiver := NewReceiver(table, meter, transport, log)
	if len(cfg.KnownSources) > 0 {
		receiver.Known = make(map[string]struct{}, len(cfg.KnownSources))
		for _, key := range cfg.KnownSources {
			receiver.Known[key] = struct{}{}
		}
	}
	transport.SetReceiver(receiver)
	return &Server{
		cfg:       cfg,
		table:     table,
		meter:     meter,
		transport: transport,
		receiver:  receiver,
		selector:  selector,
		pacer:     sched.NewPacer(cfg.PollInterval),
		log:       log,
	}
}

// Meter exposes the age meter, e.g. for wiring into pkg/metrics.
func (s *Server) Meter() *agemeter.Meter { return s.meter }

// Run drives the loop until ctx is cancelled or running_period elapses,
// then finalizes the age meter and writes the results file. It blocks
// until the run ends.
func (s *Server) Run(ctx context.Context) error {
	s.startWall = time.Now()

	var metricsErrCh chan error
	if s.cfg.MetricsListen != "" {
		collector := metrics.NewAgeCollector(s.meter, s.elapsed)
		metricsErrCh = make(chan error, 1)
		go func() { metricsErrCh <- metrics.Serve(ctx, s.cfg.MetricsListen, collector) }()
	}

	for {
		now := s.elapsed()
		if now >= s.cfg.RunningPeriod {
			break
		}
		select {
		case <-ctx.Done():
			return s.finalize(now)
		default:
		}

		sealed := s.transport.Poll(now)
		s.maybePoll(now, sealed)

		if s.cfg.Strict && s.transport.UnknownHits() > 0 {
			_ = s.finalize(now)
			return fmt.Errorf("destnode: rejected %d frame(s) from unknown source(s) under --strict", s.transport.UnknownHits())
		}
	}
	return s.finalize(s.elapsed())
}

// elapsed returns wall-clock seconds since Run started.
func (s *Server) elapsed() float64 {
	return time.Since(s.startWall).Seconds()
}

// maybePoll asks the scheduler's pacing rule whether to emit a POLL this
// iteration, and if so, selects and polls a source. None{}'s Select
// always returns ok=false, so push-mode baselines never poll.
func (s *Server) maybePoll(now float64, sealed bool) {
	if !s.pacer.ShouldPoll(now, sealed) {
		return
	}
	stats := s.table.StatsSlice()
	chosen, ok := s.selector.Select(now, s.cfg.WindowPeriod, stats)
	if !ok {
		return
	}
	src, found := s.table.Get(chosen.Key)
	if !found {
		return
	}
	if err := s.transport.SendPoll(chosen.Key, src.DataType); err != nil {
		s.log.WithError(err).WithField("source", chosen.Key).Warn("destnode: sending poll")
		return
	}
	chosen.Polls.Append(now)
	s.pacer.RecordPoll(now)
}

func (s *Server) finalize(shutdownTime float64) error {
	for _, src := range s.table.All() {
		src.State, _ = src.State.Transition(StateDraining)
	}
	snaps, aggregate := s.meter.Finalize(shutdownTime)
	for _, src := range s.table.All() {
		src.State, _ = src.State.Transition(StateClosed)
	}
	if err := agemeter.WriteReport(s.cfg.AgeRecordDir, snaps, aggregate); err != nil {
		return fmt.Errorf("destnode: writing age report: %w", err)
	}
	if err := s.transport.Close(); err != nil {
		s.log.WithError(err).Warn("destnode: closing transport")
	}
	return nil
}
