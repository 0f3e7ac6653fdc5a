package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DataType tags the sensor kind (and the TIME_REQUEST control frame) carried
// by a Frame. The variant set is fixed and small (<=8) so it is modeled as a
// dense enumeration rather than an associative container, per the protocol's
// "dynamic dispatch over sensor types" design note.
type DataType uint8

const (
	TimeRequest DataType = iota
	General
	Position
	Inertial
	Image
	Audio
	Control
	Diagnostic

	numDataTypes = iota
)

var dataTypeNames = [numDataTypes]string{
	"TIME_REQUEST", "GENERAL", "POSITION", "INERTIAL",
	"IMAGE", "AUDIO", "CONTROL", "DIAGNOSTIC",
}

func (d DataType) String() string {
	if int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return fmt.Sprintf("DataType(%d)", uint8(d))
}

// Valid reports whether d is one of the fixed protocol variants.
func (d DataType) Valid() bool {
	return d < DataType(numDataTypes)
}

// DatagramHeaderSize is the header length of the datagram encoding:
// is_fragmented(1) | data_type(1) | timestamp(8).
const DatagramHeaderSize = 10

// StreamHeaderSize is the header length of the stream encoding, excluding
// the 4-byte length prefix: is_fragmented(1) | data_type(1) | source_id(1) |
// timestamp(8).
const StreamHeaderSize = 11

// LengthPrefixSize is the size of the stream encoding's length prefix.
const LengthPrefixSize = 4

// Frame is a single wire record. SourceID is only meaningful (and only
// encoded) in stream mode, where the destination cannot infer the source
// from a UDP peer address.
type Frame struct {
	IsFragmented bool
	DataType     DataType
	SourceID     uint8
	Timestamp    float64
	Payload      []byte
}

var (
	// ErrShortBuffer is returned by DecodeDatagram when buf is smaller than
	// DatagramHeaderSize.
	ErrShortBuffer = errors.New("frame: buffer shorter than header")
	// ErrBadDataType is returned when the data_type byte names no known
	// variant.
	ErrBadDataType = errors.New("frame: unknown data_type")
)

// EncodeDatagram renders f using the datagram encoding (no length prefix,
// no source_id): one frame per UDP datagram.
func EncodeDatagram(f Frame) []byte {
	buf := make([]byte, DatagramHeaderSize+len(f.Payload))
	putDatagramHeader(buf, f)
	copy(buf[DatagramHeaderSize:], f.Payload)
	return buf
}

func putDatagramHeader(buf []byte, f Frame) {
	buf[0] = boolByte(f.IsFragmented)
	buf[1] = byte(f.DataType)
	binary.BigEndian.PutUint64(buf[2:10], float64Bits(f.Timestamp))
}

// DecodeDatagram parses a single datagram-encoded frame. Malformed headers
// (short buffer, unknown data_type) are reported as errors; callers are
// expected to drop the packet and log, per the protocol's failure
// semantics, rather than treat this as fatal.
func DecodeDatagram(buf []byte) (Frame, error) {
	if len(buf) < DatagramHeaderSize {
		return Frame{}, ErrShortBuffer
	}
	dt := DataType(buf[1])
	if !dt.Valid() {
		return Frame{}, ErrBadDataType
	}
	f := Frame{
		IsFragmented: buf[0] != 0,
		DataType:     dt,
		Timestamp:    bitsFloat64(binary.BigEndian.Uint64(buf[2:10])),
	}
	if len(buf) > DatagramHeaderSize {
		f.Payload = append([]byte(nil), buf[DatagramHeaderSize:]...)
	}
	return f, nil
}

// EncodeStream renders f using the stream encoding: a 4-byte big-endian
// total length prefix, then the header (with source_id) and payload.
func EncodeStream(f Frame) []byte {
	body := StreamHeaderSize + len(f.Payload)
	buf := make([]byte, LengthPrefixSize+body)
	binary.BigEndian.PutUint32(buf[0:4], uint32(body))
	buf[4] = boolByte(f.IsFragmented)
	buf[5] = byte(f.DataType)
	buf[6] = f.SourceID
	binary.BigEndian.PutUint64(buf[7:15], float64Bits(f.Timestamp))
	copy(buf[LengthPrefixSize+StreamHeaderSize:], f.Payload)
	return buf
}

// decodeStreamBody parses the header+payload portion of a stream frame
// (the bytes following the length prefix, already sliced to exactly the
// declared length by the caller's decoder).
func decodeStreamBody(body []byte) (Frame, error) {
	if len(body) < StreamHeaderSize {
		return Frame{}, ErrShortBuffer
	}
	dt := DataType(body[1])
	if !dt.Valid() {
		return Frame{}, ErrBadDataType
	}
	f := Frame{
		IsFragmented: body[0] != 0,
		DataType:     dt,
		SourceID:     body[2],
		Timestamp:    bitsFloat64(binary.BigEndian.Uint64(body[3:11])),
	}
	if len(body) > StreamHeaderSize {
		f.Payload = append([]byte(nil), body[StreamHeaderSize:]...)
	}
	return f, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func float64Bits(v float64) uint64 {
	return math.Float64bits(v)
}

func bitsFloat64(v uint64) float64 {
	return math.Float64frombits(v)
}
