package jp2view

// ByteSource is a seekable, read-only cursor over an in-memory buffer.
// It is the stream handed to the decoding engine in place of a file.
//
// The backing buffer is referenced, never copied or modified, so the same
// buffer may back ByteSources in several concurrent sessions. A single
// ByteSource is not safe for concurrent use.
//
// Unlike io.Reader, the end of the buffer is signalled by a zero-length
// read and never by an error.
type ByteSource struct {
	data   []byte
	offset int64
}

// NewByteSource returns a ByteSource positioned at the start of data.
func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

// Read copies up to len(p) bytes into p and advances the cursor by the
// number of bytes copied. It returns 0 at or past the end of the buffer.
func (s *ByteSource) Read(p []byte) int {
	if s.offset >= int64(len(s.data)) {
		return 0
	}
	n := copy(p, s.data[s.offset:])
	s.offset += int64(n)
	return n
}

// Next returns the next n bytes (fewer at the end of the buffer) as a
// subslice of the backing buffer and advances the cursor past them.
// The returned slice must not be modified.
func (s *ByteSource) Next(n int) []byte {
	if n <= 0 || s.offset >= int64(len(s.data)) {
		return nil
	}
	end := min(s.offset+int64(n), int64(len(s.data)))
	b := s.data[s.offset:end:end]
	s.offset = end
	return b
}

// Seek moves the cursor to offset, clamped to [0, Len()], and returns the
// new cursor position.
func (s *ByteSource) Seek(offset int64) int64 {
	s.offset = clamp(offset, 0, int64(len(s.data)))
	return s.offset
}

// Skip advances the cursor by n bytes (n may be negative), clamped to the
// buffer, and returns the number of bytes actually moved.
func (s *ByteSource) Skip(n int64) int64 {
	before := s.offset
	// Saturate rather than overflow for huge n.
	target := s.offset + n
	if n > 0 && target < s.offset {
		target = int64(len(s.data))
	}
	s.Seek(target)
	return s.offset - before
}

// Remaining returns the number of unread bytes.
func (s *ByteSource) Remaining() int64 { return int64(len(s.data)) - s.offset }

// Offset returns the cursor position.
func (s *ByteSource) Offset() int64 { return s.offset }

// Len returns the total length of the backing buffer.
func (s *ByteSource) Len() int64 { return int64(len(s.data)) }

// Bytes returns the whole backing buffer, independent of the cursor.
// The returned slice must not be modified.
func (s *ByteSource) Bytes() []byte { return s.data[:len(s.data):len(s.data)] }
