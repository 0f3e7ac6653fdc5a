// Package timesync implements the clock-sync subprotocol: a symmetric
// request/response exchange and the exponentially-smoothed offset it
// feeds. Offsets are applied additively to outbound timestamps at the
// source.
package timesync

// Offset is a single smoothed clock correction for one source/destination
// pair. The zero value is a valid, unsynchronized offset of 0.
type Offset struct {
	value float64
	alpha float64
}

// DefaultAlpha is the default smoothing factor for new Offsets.
const DefaultAlpha = 0.02

// NewOffset returns an Offset smoothed with alpha; an alpha outside (0,1]
// is replaced by DefaultAlpha.
func NewOffset(alpha float64) *Offset {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Offset{alpha: alpha}
}

// Value returns the current smoothed offset.
func (o *Offset) Value() float64 {
	return o.value
}

// Update folds a freshly observed instantaneous offset theta into the
// smoothed value: offset := alpha*theta + (1-alpha)*offset.
func (o *Offset) Update(theta float64) {
	o.value = o.alpha*theta + (1-o.alpha)*o.value
}

// Apply adds the current smoothed offset to an outbound timestamp.
func (o *Offset) Apply(t float64) float64 {
	return t + o.value
}

// InstantaneousOffset computes theta for one exchange round: t1 is the
// source's uncorrected send time, tDest is the destination's receive/reply time, t2 is
// the source's receive time for the reply. theta = tDest - (t1+t2)/2.
func InstantaneousOffset(t1, tDest, t2 float64) float64 {
	return tDest - (t1+t2)/2
}
