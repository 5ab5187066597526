package jp2view

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSourceEmpty(t *testing.T) {
	for _, data := range [][]byte{nil, {}} {
		s := NewByteSource(data)
		buf := make([]byte, 16)
		assert.Equal(t, 0, s.Read(buf))
		assert.Equal(t, int64(0), s.Remaining())
		assert.Equal(t, int64(0), s.Seek(10))
		assert.Equal(t, int64(0), s.Skip(5))
		assert.Nil(t, s.Next(4))
		assert.Equal(t, 0, s.Read(buf))
	}
}

func TestByteSourceRead(t *testing.T) {
	data := []byte("0123456789")
	s := NewByteSource(data)

	buf := make([]byte, 4)
	require.Equal(t, 4, s.Read(buf))
	assert.Equal(t, "0123", string(buf))
	assert.Equal(t, int64(6), s.Remaining())

	require.Equal(t, 4, s.Read(buf))
	assert.Equal(t, "4567", string(buf))

	require.Equal(t, 2, s.Read(buf))
	assert.Equal(t, "89", string(buf[:2]))
	assert.Equal(t, int64(10), s.Offset())

	// End of stream is a zero-length read, repeatedly.
	assert.Equal(t, 0, s.Read(buf))
	assert.Equal(t, 0, s.Read(buf))
	assert.Equal(t, int64(10), s.Offset())

	assert.Equal(t, 0, s.Read(nil))
}

func TestByteSourceSeekClamps(t *testing.T) {
	data := []byte("0123456789")
	tests := []struct {
		offset int64
		want   int64
	}{
		{0, 0},
		{5, 5},
		{10, 10},
		{11, 10},
		{math.MaxInt64, 10},
		{-1, 0},
		{math.MinInt64, 0},
	}
	for _, tt := range tests {
		s := NewByteSource(data)
		assert.Equal(t, tt.want, s.Seek(tt.offset), "seek(%d)", tt.offset)
		assert.Equal(t, tt.want, s.Offset())
		assert.Equal(t, int64(len(data))-tt.want, s.Remaining())
	}
}

// For every valid offset, a read after a seek stays within the buffer.
func TestByteSourceSeekThenRead(t *testing.T) {
	data := []byte("abcdefgh")
	for off := int64(0); off <= int64(len(data)); off++ {
		for size := 0; size <= len(data)+2; size++ {
			s := NewByteSource(data)
			s.Seek(off)
			n := s.Read(make([]byte, size))
			assert.Equal(t, min(size, len(data)-int(off)), n)
			assert.LessOrEqual(t, s.Offset(), s.Len())
			assert.GreaterOrEqual(t, s.Remaining(), int64(0))
		}
	}
}

func TestByteSourceSkip(t *testing.T) {
	s := NewByteSource([]byte("0123456789"))

	assert.Equal(t, int64(3), s.Skip(3))
	assert.Equal(t, int64(3), s.Offset())

	assert.Equal(t, int64(-2), s.Skip(-2))
	assert.Equal(t, int64(1), s.Offset())

	assert.Equal(t, int64(-1), s.Skip(-5))
	assert.Equal(t, int64(0), s.Offset())

	assert.Equal(t, int64(10), s.Skip(100))
	assert.Equal(t, int64(0), s.Skip(1))

	s.Seek(4)
	assert.Equal(t, int64(6), s.Skip(math.MaxInt64))
	assert.Equal(t, int64(0), s.Remaining())
}

func TestByteSourceNext(t *testing.T) {
	data := []byte("0123456789")
	s := NewByteSource(data)

	b := s.Next(3)
	assert.Equal(t, "012", string(b))
	assert.Equal(t, 3, cap(b), "Next must not expose bytes past its end")
	assert.Equal(t, "3456789", string(s.Next(100)))
	assert.Nil(t, s.Next(1))
	assert.Nil(t, NewByteSource(data).Next(0))

	// Next aliases the backing buffer.
	s.Seek(0)
	assert.Same(t, &data[0], &s.Next(1)[0])
}

func TestByteSourceDoesNotModifyInput(t *testing.T) {
	data := []byte("immutable")
	orig := append([]byte(nil), data...)
	s := NewByteSource(data)
	buf := make([]byte, 4)
	for s.Read(buf) > 0 {
		buf[0] = 'X'
	}
	assert.Equal(t, orig, data)
	assert.Equal(t, orig, s.Bytes())
}
