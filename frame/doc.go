// Package frame implements the wire codec for the AoI polling protocol:
// a fixed-header binary record format with two encodings (one frame per
// UDP datagram, or a 4-byte length-prefixed form for TCP streams) plus the
// small set of ASCII control messages (POLL, TIME_SYNC, TIME_RESPONSE)
// that ride the same transports.
package frame
