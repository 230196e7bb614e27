package hub

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintFramer_RoundTrip(t *testing.T) {
	framer := VarintFramer{}

	for _, size := range []int{0, 1, 127, 128, 300, 70000} {
		payload := bytes.Repeat([]byte{0xAB}, size)
		frame := framer.WriteFrame(payload)

		got, n, ok, err := framer.TryParseFrame(frame)
		require.NoError(t, err)
		require.True(t, ok, "size %d", size)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, payload, got)
	}
}

func TestVarintFramer_LengthPrefix(t *testing.T) {
	framer := VarintFramer{}

	assert.Equal(t, []byte{0x03, 'a', 'b', 'c'}, framer.WriteFrame([]byte("abc")))
	assert.Equal(t, []byte{0x80, 0x01}, framer.WriteFrame(make([]byte, 128))[:2])
}

func TestVarintFramer_Incomplete(t *testing.T) {
	framer := VarintFramer{}
	frame := framer.WriteFrame(make([]byte, 200))

	tests := map[string][]byte{
		"empty":           nil,
		"partial prefix":  frame[:1],
		"partial payload": frame[:50],
		"one byte short":  frame[:len(frame)-1],
	}

	for name, buf := range tests {
		t.Run(name, func(t *testing.T) {
			payload, n, ok, err := framer.TryParseFrame(buf)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Zero(t, n)
			assert.Nil(t, payload)
		})
	}
}

func TestVarintFramer_LargestFrameIncomplete(t *testing.T) {
	framer := VarintFramer{}

	buf := binary.AppendUvarint(nil, DefaultMaxFrameSize)
	buf = append(buf, "partial"...)

	payload, n, ok, err := framer.TryParseFrame(buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)
	assert.Nil(t, payload)
}

func TestVarintFramer_LeavesFollowingFrame(t *testing.T) {
	framer := VarintFramer{}
	buf := append(framer.WriteFrame([]byte("one")), framer.WriteFrame([]byte("two"))...)

	payload, n, ok, err := framer.TryParseFrame(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), payload)

	payload, _, ok, err = framer.TryParseFrame(buf[n:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), payload)
}

func TestVarintFramer_PrefixTooLong(t *testing.T) {
	framer := VarintFramer{}

	_, _, ok, err := framer.TryParseFrame([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.False(t, ok)
	assert.True(t, IsFatal(err))
}

func TestVarintFramer_FrameTooLarge(t *testing.T) {
	framer := VarintFramer{MaxFrameSize: 16}

	_, _, ok, err := framer.TryParseFrame(framer.WriteFrame(make([]byte, 17)))
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "exceeds limit of 16")

	_, _, ok, err = framer.TryParseFrame(framer.WriteFrame(make([]byte, 16)))
	assert.NoError(t, err)
	assert.True(t, ok)
}
