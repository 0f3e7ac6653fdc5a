package destnode

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/agemeter"
)

// PeerSender delivers an outbound ASCII control message (POLL, TIME_SYNC,
// TIME_RESPONSE) to a known source, over whichever transport that source
// was registered on.
type PeerSender interface {
	SendASCII(key string, msg string) error
}

// Receiver implements the transport-independent half of ingress handling:
// given a decoded Frame and the key identifying its source, it replies to
// TIME_REQUESTs, reassembles fragments, and applies the delivery update
// when a message seals. Transport-specific code (udp.go, stream.go) is
// responsible only for framing/decoding and calling HandleFrame.
type Receiver struct {
	table  *Table
	meter  *agemeter.Meter
	sender PeerSender
	log    *logrus.Logger
	drops  uint64

	// Known, if non-nil, restricts HandleFrame to the declared source keys
	// from --sources. A nil map accepts frames from any key, registering
	// it on first contact.
	Known       map[string]struct{}
	unknownHits uint64
}

// NewReceiver builds a Receiver over table and meter, replying through
// sender and logging with log.
func NewReceiver(table *Table, meter *agemeter.Meter, sender PeerSender, log *logrus.Logger) *Receiver {
	return &Receiver{table: table, meter: meter, sender: sender, log: log}
}

// Drops reports how many malformed/oversize datagrams have been discarded
// since startup.
func (r *Receiver) Drops() uint64 { return r.drops }

// UnknownHits reports how many frames arrived from a key outside Known.
// The server layer treats a nonzero count as fatal under --strict.
func (r *Receiver) UnknownHits() uint64 { return r.unknownHits }

// CountDrop increments the drop counter; transport drivers call this when
// DecodeDatagram/decode fails before a Frame ever reaches HandleFrame.
func (r *Receiver) CountDrop() { r.drops++ }

// HandleFrame applies one decoded Frame arriving from key at wall-clock now.
// It returns sealed=true exactly when this frame completed a logical
// delivery, which the caller should treat as the event-driven trigger for
// an immediate next poll.
func (r *Receiver) HandleFrame(key string, now float64, f frame.Frame) (sealed bool) {
	if r.Known != nil {
		if _, ok := r.Known[key]; !ok {
			r.unknownHits++
			r.log.WithField("source", key).Error("destnode: rejecting frame from unknown source")
			return false
		}
	}

	src, ok := r.table.Get(key)
	if !ok {
		src = r.table.Register(key, f.DataType, now)
	}

	if f.DataType == frame.TimeRequest {
		if src.State == StateNew {
			src.State, _ = src.State.Transition(StateSynced)
		}
		if err := r.sender.SendASCII(key, frame.BuildTimeResponse(now, f.Timestamp)); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"source": key, "source_id": src.ID}).
				Warn("destnode: sending time response")
		}
		return false
	}

	src.AppendReassembly(f.Payload)
	if f.IsFragmented {
		return false
	}

	src.TakeReassembly() // sealed; the reassembled bytes aren't inspected further

	tRecv := now
	tSrc := math.Max(f.Timestamp, tRecv)

	if src.State < StateActive {
		src.State, _ = src.State.Transition(StateActive)
	}

	if tSrc <= src.Stats.LastSystimeReceived {
		// Stale delivery: the monotone-freshness invariant forbids
		// regressing last_systime_received, so nothing advances.
		// approx_age_HOL is deliberately left untouched too, the
		// preferred, non-penalizing variant.
		return true
	}

	r.meter.RecordDelivery(key, tRecv, tSrc)
	src.Stats.ApproxAgeHOL = tRecv - tSrc
	src.Stats.LastSystimeReceived = tSrc
	src.Stats.Receipts.Append(tRecv)
	return true
}
