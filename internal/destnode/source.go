package destnode

import (
	"time"

	"github.com/rs/xid"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/sched"
)

// Source is one (source_id, data_type) pair's destination-side state: its
// lifecycle stage, the scheduler bookkeeping pkg/sched needs, and the
// in-flight fragment reassembly buffer.
//
// Table and everything that touches a Source is driven from the single
// run-loop goroutine, so no locking is needed here — only the age meter,
// which a metrics scrape can read concurrently, guards itself.
type Source struct {
	Key        string
	DataType   frame.DataType
	State      State
	Stats      *sched.SourceStats
	reassembly []byte

	// ID is a process-lifetime-unique identifier assigned when the source
	// first registers, used only as a stable Prometheus label and log
	// correlation key — never in scheduling or age math, since Key alone
	// already determines both.
	ID string

	// RTTEstimate is the most recent kernel TCP_INFO smoothed RTT sample
	// for this source's stream connection (pkg/rttinfo), nil until the
	// first successful sample. UDP sources never populate this.
	RTTEstimate *time.Duration
}

// Table tracks every known source in first-registration order, giving the
// scheduler's tie-breaking rule a stable, deterministic order.
type Table struct {
	sources map[string]*Source
	order   []string
}

// NewTable returns an empty source table.
func NewTable() *Table {
	return &Table{sources: make(map[string]*Source)}
}

// Register ensures key has a Source in the NEW state. Calling it again
// for an already-known key is a no-op.
func (t *Table) Register(key string, dt frame.DataType, now float64) *Source {
	if s, ok := t.sources[key]; ok {
		return s
	}
	s := &Source{
		Key:      key,
		DataType: dt,
		State:    StateNew,
		ID:       xid.New().String(),
		Stats: &sched.SourceStats{
			Key:                 key,
			LastSystimeReceived: now,
			Polls:               sched.NewWindow(),
			Receipts:            sched.NewWindow(),
		},
	}
	t.sources[key] = s
	t.order = append(t.order, key)
	return s
}

// Get returns the Source for key, if known.
func (t *Table) Get(key string) (*Source, bool) {
	s, ok := t.sources[key]
	return s, ok
}

// All returns every Source in registration order. The returned slice holds
// the live Sources, not copies.
func (t *Table) All() []*Source {
	out := make([]*Source, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.sources[key])
	}
	return out
}

// StatsSlice is All but projected to the []*sched.SourceStats shape
// pkg/sched.Selector.Select expects. The entries are the live stats, so
// window-expiration side effects of a Selector persist across calls.
func (t *Table) StatsSlice() []*sched.SourceStats {
	out := make([]*sched.SourceStats, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.sources[key].Stats)
	}
	return out
}

// AppendReassembly appends payload to key's in-flight fragment buffer.
func (s *Source) AppendReassembly(payload []byte) {
	s.reassembly = append(s.reassembly, payload...)
}

// TakeReassembly returns and clears the accumulated reassembly buffer, for
// use once a frame with IsFragmented=false seals the message.
func (s *Source) TakeReassembly() []byte {
	buf := s.reassembly
	s.reassembly = nil
	return buf
}

// DropReassembly discards any in-flight fragments (e.g. on stream reset).
func (s *Source) DropReassembly() {
	s.reassembly = nil
}
