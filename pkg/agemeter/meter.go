// Package agemeter implements age-of-information integration: a
// continuous trapezoid-rule integral of age(t) = t - last_systime_received
// per source, finalized at shutdown into a time-average AoI per source
// and an aggregate mean.
package agemeter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// sourceAccumulator holds one source's age-area bookkeeping.
type sourceAccumulator struct {
	lastRecordedAge     float64
	lastReceivedTime    float64
	lastSystimeReceived float64
	totalWeightedArea   float64
}

// Meter integrates per-source age area across the whole run. All state is
// guarded by a single mutex with bounded critical sections and no I/O
// inside the lock, so it is safe to drive from the run loop and scrape
// from a metrics HTTP handler concurrently.
type Meter struct {
	mu        sync.Mutex
	startTime float64
	sources   map[string]*sourceAccumulator
	order     []string // insertion order, for deterministic report output
}

// New returns a Meter whose run began at startTime.
func New(startTime float64) *Meter {
	return &Meter{startTime: startTime, sources: make(map[string]*sourceAccumulator)}
}

// Register ensures key has an accumulator, initialized for a source's NEW
// state (last_systime_received := now). Calling Register again for an
// already-known key is a no-op.
func (m *Meter) Register(key string, now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[key]; ok {
		return
	}
	m.sources[key] = &sourceAccumulator{
		lastSystimeReceived: now,
		lastReceivedTime:    now,
	}
	m.order = append(m.order, key)
}

// RecordDelivery closes the trapezoid up to tRecv and advances the
// accumulator, following the delivery update:
//
//	area = (lastRecordedAge + (tRecv - lastSystimeReceived)) * (tRecv - lastReceivedTime) / 2
//	lastRecordedAge := tRecv - tSrc
//	lastReceivedTime := tRecv
//	lastSystimeReceived := tSrc
//
// Callers must have already applied the tSrc = max(frame.Timestamp, tRecv)
// clamp and the "only if tSrc > lastSystimeReceived" freshness check before
// calling this (agemeter does not re-derive that decision, since it is
// also the monotone-freshness invariant the scheduler relies on).
func (m *Meter) RecordDelivery(key string, tRecv, tSrc float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.sources[key]
	if acc == nil {
		acc = &sourceAccumulator{lastSystimeReceived: tRecv, lastReceivedTime: tRecv}
		m.sources[key] = acc
		m.order = append(m.order, key)
	}
	area := (acc.lastRecordedAge + (tRecv - acc.lastSystimeReceived)) * (tRecv - acc.lastReceivedTime) / 2
	acc.totalWeightedArea += area
	acc.lastRecordedAge = tRecv - tSrc
	acc.lastReceivedTime = tRecv
	acc.lastSystimeReceived = tSrc
}

// MeanAge returns total_weighted_age_area / run_duration for key, using
// elapsedTime as the run duration so far.
func (m *Meter) MeanAge(key string, elapsedTime float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.sources[key]
	if !ok || elapsedTime <= 0 {
		return 0, false
	}
	return acc.totalWeightedArea / elapsedTime, true
}

// LastSystimeReceived returns the source's current freshest corrected
// timestamp, used by the scheduler's MAF/WiFresh weight computation.
func (m *Meter) LastSystimeReceived(key string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.sources[key]
	if !ok {
		return 0, false
	}
	return acc.lastSystimeReceived, true
}

// Snapshot is a point-in-time, lock-free copy of one source's accumulator,
// safe to read after Finalize or for metrics export.
type Snapshot struct {
	Key                 string
	LastSystimeReceived float64
	MeanAge             float64
}

// Finalize closes every source's final trapezoid up to shutdownTime and
// returns the mean AoI of every source, in registration order, plus the
// aggregate (arithmetic mean over sources). It is idempotent only in the
// sense that calling it twice double-counts the tail area — callers should
// call it exactly once, at shutdown.
func (m *Meter) Finalize(shutdownTime float64) ([]Snapshot, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := shutdownTime - m.startTime
	if duration <= 0 {
		duration = 1
	}

	snaps := make([]Snapshot, 0, len(m.order))
	var sum float64
	for _, key := range m.order {
		acc := m.sources[key]
		age := shutdownTime - acc.lastSystimeReceived
		area := (age + acc.lastRecordedAge) * (shutdownTime - acc.lastReceivedTime) / 2
		acc.totalWeightedArea += area
		mean := acc.totalWeightedArea / duration
		snaps = append(snaps, Snapshot{Key: key, LastSystimeReceived: acc.lastSystimeReceived, MeanAge: mean})
		sum += mean
	}
	var aggregate float64
	if len(snaps) > 0 {
		aggregate = sum / float64(len(snaps))
	}
	return snaps, aggregate
}

// LiveSnapshot projects each source's mean AoI as of now, without mutating
// any accumulator — unlike Finalize, it is safe to call repeatedly (e.g.
// from a Prometheus scrape handler) while the run loop keeps driving
// RecordDelivery concurrently.
func (m *Meter) LiveSnapshot(now float64) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := now - m.startTime
	if duration <= 0 {
		duration = 1
	}

	snaps := make([]Snapshot, 0, len(m.order))
	for _, key := range m.order {
		acc := m.sources[key]
		age := now - acc.lastSystimeReceived
		area := (age + acc.lastRecordedAge) * (now - acc.lastReceivedTime) / 2
		mean := (acc.totalWeightedArea + area) / duration
		snaps = append(snaps, Snapshot{Key: key, LastSystimeReceived: acc.lastSystimeReceived, MeanAge: mean})
	}
	return snaps
}

// WriteReport writes the ages_<N>sources.txt report file: one
// "<key>: <mean_age>" line per source, then the aggregate line.
func WriteReport(dir string, snaps []Snapshot, aggregate float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("agemeter: creating report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("ages_%dsources.txt", len(snaps)))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("agemeter: creating report file: %w", err)
	}
	defer f.Close()

	for _, s := range snaps {
		if _, err := fmt.Fprintf(f, "%s: %v\n", s.Key, s.MeanAge); err != nil {
			return fmt.Errorf("agemeter: writing report: %w", err)
		}
	}
	if _, err := fmt.Fprintf(f, "Mean AOI of all data sources: %v\n", aggregate); err != nil {
		return fmt.Errorf("agemeter: writing report: %w", err)
	}
	return nil
}
