// Package sensor implements the rate-paced synthetic payload generator
// attached to each source sensor. It is deliberately a thin, opaque byte
// producer — a real sensor feed would be an external collaborator — so
// this package only owns pacing and the data_type/packet_size/rate
// configuration, not any notion of what the bytes mean.
package sensor

import (
	"math/rand/v2"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/pkg/queue"
)

// Config describes one sensor attached to a source.
type Config struct {
	DataType   frame.DataType
	PacketSize int     // total bytes including the datagram header
	Rate       float64 // updates per second
}

// Interval is the derived per-update spacing 1/rate.
func (c Config) Interval() float64 {
	if c.Rate <= 0 {
		return 0
	}
	return 1.0 / c.Rate
}

// payloadSize is the number of opaque filler bytes carried per update,
// after subtracting the datagram header.
func (c Config) payloadSize() int {
	n := c.PacketSize - frame.DatagramHeaderSize
	if n < 0 {
		return 0
	}
	return n
}

// Producer paces one Config's output: Generate emits at most one update
// per Interval() of caller-supplied time, stamped at emission. It holds no
// goroutine or timer of its own — the single-threaded source engine calls
// Generate once per loop iteration.
type Producer struct {
	cfg        Config
	lastEmit   float64
	hasEmitted bool
	rng        *rand.Rand
}

// NewProducer returns a producer for cfg. rngSeed lets callers get
// deterministic payload bytes in tests; production callers should derive
// it from a real entropy source.
func NewProducer(cfg Config, rngSeed uint64) *Producer {
	return &Producer{cfg: cfg, rng: rand.New(rand.NewPCG(rngSeed, rngSeed^0x9e3779b97f4a7c15))}
}

// Generate returns a fresh update if at least Interval() seconds have
// elapsed since the last one (on the caller's clock, "now"). There is no
// backpressure: if the caller doesn't drain fast enough, staleness is
// handled entirely by the LCFS drain policy upstream, never here.
func (p *Producer) Generate(now float64) (queue.Update, bool) {
	interval := p.cfg.Interval()
	if p.hasEmitted && now-p.lastEmit < interval {
		return queue.Update{}, false
	}
	p.lastEmit = now
	p.hasEmitted = true

	payload := make([]byte, p.cfg.payloadSize())
	for i := range payload {
		payload[i] = byte(p.rng.IntN(256))
	}
	return queue.Update{Timestamp: now, Payload: payload}, true
}

// DataType reports the sensor kind this producer feeds.
func (p *Producer) DataType() frame.DataType { return p.cfg.DataType }
