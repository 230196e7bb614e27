package hub

import (
	"encoding/binary"
)

// FrameReader extracts one frame payload from the front of a buffer.
type FrameReader interface {
	// TryParseFrame returns the payload of the first complete frame in buf and
	// the number of bytes the frame occupies. ok is false when buf does not yet
	// hold a complete frame; nothing is consumed in that case.
	TryParseFrame(buf []byte) (payload []byte, n int, ok bool, err error)
}

// FrameWriter wraps an encoded payload into a frame.
type FrameWriter interface {
	WriteFrame(payload []byte) []byte
}

const (
	// maxLengthPrefix is the largest number of bytes a length prefix may use.
	maxLengthPrefix = 5
	// DefaultMaxFrameSize is the largest payload a VarintFramer accepts by default.
	DefaultMaxFrameSize = 1<<31 - 1
)

// VarintFramer prefixes every payload with its length encoded as an
// unsigned base-128 varint.
type VarintFramer struct {
	// MaxFrameSize bounds accepted payloads. Zero means DefaultMaxFrameSize.
	MaxFrameSize int
}

func (f VarintFramer) maxFrameSize() int {
	if f.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}

// TryParseFrame implements FrameReader.
func (f VarintFramer) TryParseFrame(buf []byte) ([]byte, int, bool, error) {
	prefix := buf
	if len(prefix) > maxLengthPrefix {
		prefix = prefix[:maxLengthPrefix]
	}

	size, n := binary.Uvarint(prefix)
	switch {
	case n == 0 && len(prefix) == maxLengthPrefix:
		return nil, 0, false, formatErrorf("frame length", "length prefix exceeds %d bytes", maxLengthPrefix)
	case n == 0:
		return nil, 0, false, nil
	case n < 0:
		return nil, 0, false, formatErrorf("frame length", "length prefix overflows")
	}

	if size > uint64(f.maxFrameSize()) {
		return nil, 0, false, formatErrorf("frame length", "frame of %d bytes exceeds limit of %d", size, f.maxFrameSize())
	}

	if size > uint64(len(buf)-n) {
		return nil, 0, false, nil
	}
	end := n + int(size)
	return buf[n:end], end, true, nil
}

// WriteFrame implements FrameWriter.
func (f VarintFramer) WriteFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+maxLengthPrefix)
	frame = binary.AppendUvarint(frame, uint64(len(payload)))
	return append(frame, payload...)
}
