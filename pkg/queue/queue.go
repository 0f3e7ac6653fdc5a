// Package queue implements the per-sensor dual queue used at the source
// node: an LCFS queue holding the freshest complete update, and an FCFS
// queue holding the fragments of whichever update is currently being
// transmitted.
package queue

import "github.com/ccczzc/AOI/frame"

// Policy selects how the LCFS side behaves on drain.
type Policy int

const (
	// PolicyKeepHistory leaves older LCFS entries in place after a drain
	// (WiFresh mode): the destination's own pacing controls intake
	// cadence, so the queue may grow unbounded between polls.
	PolicyKeepHistory Policy = iota
	// PolicyClearOnDrain clears the entire LCFS queue after taking the
	// tail (MAF mode), keeping it effectively size-1.
	PolicyClearOnDrain
)

// Update is one complete, unfragmented sensor reading waiting to be sent.
type Update struct {
	Timestamp float64
	Payload   []byte
}

// Fragment is one outgoing piece of an update that has been split because
// it exceeded max_payload.
type Fragment struct {
	Timestamp    float64
	IsFragmented bool // false only for the last fragment of the update
	Payload      []byte
}

// Dual is the per-sensor queue pair: lcfs holds complete updates (tail =
// freshest), fcfs holds the fragments of the update currently in flight.
// The invariant "transmit a fragment only if fcfs is non-empty; otherwise
// take the lcfs tail; otherwise beacon" is enforced by Drain, not by
// callers.
type Dual struct {
	policy Policy
	lcfs   []Update
	fcfs   []Fragment
}

// New returns an empty dual queue operating under the given policy.
func New(policy Policy) *Dual {
	return &Dual{policy: policy}
}

// Push enqueues a freshly generated update at the LCFS tail.
func (d *Dual) Push(u Update) {
	d.lcfs = append(d.lcfs, u)
}

// pushFragments replaces the FCFS queue with a fresh run of fragments
// belonging to one update, in emission order.
func (d *Dual) pushFragments(frags []Fragment) {
	d.fcfs = append(d.fcfs[:0], frags...)
}

// LCFSDepth reports how many complete updates are currently queued.
func (d *Dual) LCFSDepth() int {
	return len(d.lcfs)
}

// FCFSDepth reports how many fragments remain of the in-flight update.
func (d *Dual) FCFSDepth() int {
	return len(d.fcfs)
}

// popFragment removes and returns the oldest queued fragment.
func (d *Dual) popFragment() (Fragment, bool) {
	if len(d.fcfs) == 0 {
		return Fragment{}, false
	}
	f := d.fcfs[0]
	d.fcfs = d.fcfs[1:]
	return f, true
}

// popFreshest removes and returns the LCFS tail (the freshest update),
// applying the queue's clear-on-drain policy.
func (d *Dual) popFreshest() (Update, bool) {
	if len(d.lcfs) == 0 {
		return Update{}, false
	}
	u := d.lcfs[len(d.lcfs)-1]
	switch d.policy {
	case PolicyClearOnDrain:
		d.lcfs = d.lcfs[:0]
	default:
		d.lcfs = d.lcfs[:len(d.lcfs)-1]
	}
	return u, true
}

// Drain decides what a single POLL should transmit for this sensor,
// following the ordered decision tree: fragment first, then the LCFS tail
// (fragmenting it into fcfs if it exceeds maxPayload, adding clockOffset
// to its timestamp), then an empty beacon. now is the source-local clock
// used to stamp beacons.
func (d *Dual) Drain(maxPayload int, clockOffset float64, now float64) frame.Frame {
	if frag, ok := d.popFragment(); ok {
		return frame.Frame{
			IsFragmented: frag.IsFragmented,
			Timestamp:    frag.Timestamp,
			Payload:      frag.Payload,
		}
	}
	if u, ok := d.popFreshest(); ok {
		stamped := u.Timestamp + clockOffset
		if len(u.Payload) <= maxPayload {
			return frame.Frame{IsFragmented: false, Timestamp: stamped, Payload: u.Payload}
		}
		frags := fragment(u.Payload, maxPayload, stamped)
		d.pushFragments(frags)
		first, _ := d.popFragment()
		return frame.Frame{IsFragmented: first.IsFragmented, Timestamp: first.Timestamp, Payload: first.Payload}
	}
	return frame.Frame{IsFragmented: false, Timestamp: now, Payload: nil}
}

// fragment splits payload into ceil(len/maxPayload) pieces, every fragment
// carrying the same (already offset-corrected) timestamp; all but the last
// are marked IsFragmented.
func fragment(payload []byte, maxPayload int, timestamp float64) []Fragment {
	if maxPayload <= 0 {
		maxPayload = len(payload)
	}
	n := (len(payload) + maxPayload - 1) / maxPayload
	frags := make([]Fragment, 0, n)
	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := min(start+maxPayload, len(payload))
		frags = append(frags, Fragment{
			Timestamp:    timestamp,
			IsFragmented: i != n-1,
			Payload:      append([]byte(nil), payload[start:end]...),
		})
	}
	return frags
}
