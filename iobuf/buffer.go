// Package iobuf implements the per-connection byte buffer used to
// accumulate partial reads and partial writes. Bytes are appended at the
// back and consumed from the front; consuming never drops bytes that have
// not yet been consumed.
package iobuf

// Buffer is an append/consume byte buffer. The zero value is an empty,
// ready-to-use buffer.
type Buffer struct {
	data []byte
	off  int // index of the first unconsumed byte
}

// Append copies p onto the end of the buffer's unconsumed bytes.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.compactIfWorthwhile()
	b.data = append(b.data, p...)
}

// Bytes returns the unconsumed bytes. The returned slice is only valid
// until the next call to Append or Consume.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Consume drops the first n unconsumed bytes. It panics if n is negative or
// exceeds Len(), the same contract as slicing.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("iobuf: Consume out of range")
	}
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// compactIfWorthwhile slides unconsumed bytes back to index 0 once the
// consumed prefix dominates the backing array, so a long-lived connection
// buffer does not grow without bound.
func (b *Buffer) compactIfWorthwhile() {
	if b.off == 0 {
		return
	}
	if b.off < len(b.data)/2 {
		return
	}
	n := copy(b.data, b.data[b.off:])
	b.data = b.data[:n]
	b.off = 0
}
