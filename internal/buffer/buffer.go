package buffer

// Buffer accumulates interrelated byte segments in one contiguous allocation,
// bounded by a hard limit. The parser uses it to survive heads split across
// socket reads: a segment is appended piecewise and finished once complete.
type Buffer struct {
	memory  []byte
	begin   int
	maxSize int
}

func New(initialSize, maxSize int) *Buffer {
	return &Buffer{
		memory:  make([]byte, 0, initialSize),
		maxSize: maxSize,
	}
}

// Append writes data unless the limit gets exceeded, in which case the data is
// discarded and false returned.
func (b *Buffer) Append(data []byte) (ok bool) {
	if len(b.memory)+len(data) > b.maxSize {
		return false
	}

	b.memory = append(b.memory, data...)
	return true
}

// SegmentLength returns the number of bytes in the segment being currently built.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// Preview returns the current segment without finishing it.
func (b *Buffer) Preview() []byte {
	return b.memory[b.begin:]
}

// Finish completes the current segment, returning its contents. The returned
// slice stays valid until Clear.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:]
	b.begin = len(b.memory)

	return segment
}

// Clear resets the pointers, so old segments may be overridden by new ones.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
