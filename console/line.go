package console

import (
	"fmt"

	"github.com/keystash-dev/keystash/pkg"
)

// DefaultLineCapacity is the default maximum command line length.
const DefaultLineCapacity = 256

// LineBuffer accumulates one command line. Its length never exceeds the
// capacity it was created with.
type LineBuffer struct {
	buf []byte
}

// NewLineBuffer creates a buffer holding at most capacity bytes.
func NewLineBuffer(capacity int) (*LineBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: line capacity %d", pkg.ErrInvalidParameter, capacity)
	}
	return &LineBuffer{buf: make([]byte, 0, capacity)}, nil
}

// Push appends p. If the result would exceed the capacity nothing is
// appended and pkg.ErrLineOverflow is returned.
func (b *LineBuffer) Push(p []byte) error {
	if len(b.buf)+len(p) > cap(b.buf) {
		return pkg.ErrLineOverflow
	}
	b.buf = append(b.buf, p...)
	return nil
}

// Bytes returns the accumulated line. The slice is valid until the next
// Push or Reset.
func (b *LineBuffer) Bytes() []byte {
	return b.buf
}

// Len returns the accumulated length.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the capacity.
func (b *LineBuffer) Cap() int {
	return cap(b.buf)
}

// Reset empties the buffer.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}
