package buffer

import (
	"fmt"
	"io"
	"sync"
)

// RingBuffer keeps the most recent elements written to it. Writes never
// block; once full, the oldest elements are overwritten.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	tail     int64
	n        int
	closeErr error
}

// RingN returns a RingBuffer remembering the last size elements.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer[T]{buf: make([]T, size)}
}

// Cap returns the ring capacity.
func (rb *RingBuffer[T]) Cap() int { return len(rb.buf) }

// Write records p, discarding the oldest elements as needed.
func (rb *RingBuffer[T]) Write(p []T) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return 0, fmt.Errorf("buffer: write to closed buffer: %w", rb.closeErr)
	}
	src := p
	if len(src) > len(rb.buf) {
		src = src[len(src)-len(rb.buf):]
		rb.tail += int64(len(p) - len(src))
	}
	size := int64(len(rb.buf))
	for len(src) > 0 {
		at := int(rb.tail % size)
		c := copy(rb.buf[at:], src)
		src = src[c:]
		rb.tail += int64(c)
	}
	rb.n = min(rb.n+len(p), len(rb.buf))
	return len(p), nil
}

// Add records a single element.
func (rb *RingBuffer[T]) Add(v T) error {
	_, err := rb.Write([]T{v})
	return err
}

// Len returns how many elements are currently remembered.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.n
}

// Snapshot copies the newest len(dst) elements into dst, oldest first, and
// returns how many were copied. When fewer are remembered the copied
// elements are right-aligned and the leading part of dst is left untouched.
func (rb *RingBuffer[T]) Snapshot(dst []T) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	k := min(len(dst), rb.n)
	size := int64(len(rb.buf))
	start := rb.tail - int64(k)
	off := len(dst) - k
	for i := 0; i < k; i++ {
		dst[off+i] = rb.buf[(start+int64(i))%size]
	}
	return k
}

// Bytes returns a copy of everything remembered, oldest first.
func (rb *RingBuffer[T]) Bytes() []T {
	rb.mu.Lock()
	n := rb.n
	rb.mu.Unlock()
	out := make([]T, n)
	k := rb.Snapshot(out)
	return out[len(out)-k:]
}

// Reset forgets every element.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.n = 0
	rb.tail = 0
}

// CloseWithError rejects further writes with err.
func (rb *RingBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr == nil {
		rb.closeErr = err
	}
	return nil
}

// Close is CloseWithError(nil).
func (rb *RingBuffer[T]) Close() error {
	return rb.CloseWithError(nil)
}
