// Package sched implements the destination-side source-selection
// policies: MAF (maximum age first), WiFresh (weighted potential
// age-reduction index), and None (no scheduler, for the FCFS baselines).
package sched

// Window is a trailing time-stamped event log, used for both the
// time_polls and time_receipts windows in SourceStats.
type Window struct {
	window
}

// NewWindow returns an empty window.
func NewWindow() *Window { return &Window{} }

// SourceStats is the subset of destnode.SourceState the scheduler needs to
// compute a weight and make a selection. It is a view, not an owner: the
// destination's receiver mutates LastSystimeReceived/ApproxAgeHOL and
// appends to the windows; the scheduler only reads and expires them.
type SourceStats struct {
	// Key identifies the source for logging and deterministic tie-break
	// ordering (ties broken by insertion order of the source set).
	Key                 string
	LastSystimeReceived float64
	ApproxAgeHOL        float64
	Polls               *Window
	Receipts            *Window
}

// Selector picks the next source to poll, if any.
type Selector interface {
	// Select expires stale window entries (older than windowPeriod) and
	// returns the chosen source. ok is false only when sources is empty
	// or the policy never polls (None).
	Select(now, windowPeriod float64, sources []*SourceStats) (chosen *SourceStats, ok bool)
	Name() string
}

// MAF selects the source with the minimum LastSystimeReceived (maximum
// current age). It performs no window maintenance since its decision
// doesn't depend on the trailing windows.
type MAF struct{}

func (MAF) Name() string { return "maf" }

func (MAF) Select(now, windowPeriod float64, sources []*SourceStats) (*SourceStats, bool) {
	if len(sources) == 0 {
		return nil, false
	}
	best := sources[0]
	for _, s := range sources[1:] {
		if s.LastSystimeReceived < best.LastSystimeReceived {
			best = s
		}
	}
	return best, true
}

// WiFresh selects the source maximizing p*delta^2, where p is a
// Laplace-smoothed recent success ratio and delta is the potential age
// reduction a fresh delivery would realize right now.
type WiFresh struct{}

func (WiFresh) Name() string { return "wifresh" }

// Weight computes the WiFresh index for one source at time now, expiring
// its windows first. A non-positive delta yields a weight of 0. It is
// exported so callers (and tests) can inspect the weight without going
// through selection.
func Weight(now, windowPeriod float64, s *SourceStats) float64 {
	cutoff := now - windowPeriod
	s.Polls.Expire(cutoff)
	s.Receipts.Expire(cutoff)

	p := float64(s.Receipts.Len()+1) / float64(s.Polls.Len()+1)
	delta := now - s.LastSystimeReceived - s.ApproxAgeHOL
	if delta <= 0 {
		return 0
	}
	return p * delta * delta
}

func (WiFresh) Select(now, windowPeriod float64, sources []*SourceStats) (*SourceStats, bool) {
	if len(sources) == 0 {
		return nil, false
	}
	var best *SourceStats
	var bestWeight float64
	for _, s := range sources {
		w := Weight(now, windowPeriod, s)
		if best == nil || w > bestWeight {
			best, bestWeight = s, w
		}
	}
	return best, true
}

// None implements the FCFS baselines, where sources push on their own
// cadence and the destination never polls.
type None struct{}

func (None) Name() string { return "none" }

func (None) Select(float64, float64, []*SourceStats) (*SourceStats, bool) {
	return nil, false
}

// Pacer implements the shared poll-emission pacing rule: emit a poll
// whenever the interval has elapsed, or immediately when a delivery just
// sealed (event-driven polling).
type Pacer struct {
	interval float64
	lastPoll float64
	armed    bool
}

// NewPacer returns a Pacer with the given poll_interval. The first call to
// ShouldPoll always returns true (there has been no prior poll to pace
// against).
func NewPacer(interval float64) *Pacer {
	return &Pacer{interval: interval}
}

// ShouldPoll reports whether a poll should be emitted now. deliverySealed
// should be true exactly when a delivery just completed reassembly this
// iteration, which always triggers an immediate poll regardless of the
// pacing deadline.
func (p *Pacer) ShouldPoll(now float64, deliverySealed bool) bool {
	if deliverySealed {
		return true
	}
	if !p.armed {
		return true
	}
	return now-p.lastPoll >= p.interval
}

// RecordPoll marks that a poll was just sent at now, resetting the pacing
// deadline.
func (p *Pacer) RecordPoll(now float64) {
	p.lastPoll = now
	p.armed = true
}
