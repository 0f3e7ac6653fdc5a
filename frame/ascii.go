package frame

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// The protocol's three control exchanges ride as plain ASCII rather than
// the binary codec: POLL targets a sensor by data_type, TIME_SYNC requests
// a destination-initiated clock exchange, and TIME_RESPONSE echoes back
// the two timestamps a clock-sync round needs.

const (
	pollPrefix         = "POLL:"
	timeSyncCommand    = "TIME_SYNC"
	timeResponsePrefix = "TIME_RESPONSE:"
)

// BuildPoll formats a destination->source POLL command for dt.
func BuildPoll(dt DataType) string {
	return fmt.Sprintf("%s%d", pollPrefix, uint8(dt))
}

// ParsePoll extracts the targeted DataType from a POLL command, if s is one.
func ParsePoll(s string) (DataType, bool) {
	rest, ok := strings.CutPrefix(s, pollPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	dt := DataType(n)
	return dt, dt.Valid()
}

// IsTimeSync reports whether s is the destination-initiated TIME_SYNC
// request string.
func IsTimeSync(s string) bool {
	return s == timeSyncCommand
}

// BuildTimeResponse formats a TIME_RESPONSE carrying the destination's
// receive time and the echoed source-side send time t1, using the wire
// format's fixed-width float layout ("%010.15f").
func BuildTimeResponse(tDest, t1 float64) string {
	return fmt.Sprintf("%s%010.15f:%010.15f", timeResponsePrefix, tDest, t1)
}

// WrapASCIIStream prepends the same 4-byte big-endian length prefix the
// binary codec uses, so ASCII control messages can ride a stream transport
// alongside length-prefixed Frames without a separate framing.
func WrapASCIIStream(msg string) []byte {
	out := make([]byte, LengthPrefixSize+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[LengthPrefixSize:], msg)
	return out
}

// ParseTimeResponse extracts (tDest, t1) from a TIME_RESPONSE string.
func ParseTimeResponse(s string) (tDest, t1 float64, ok bool) {
	rest, found := strings.CutPrefix(s, timeResponsePrefix)
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	tDest, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	t1, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return tDest, t1, true
}
