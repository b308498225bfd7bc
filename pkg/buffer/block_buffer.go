package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next once the writer has closed and every
// element has been consumed.
var ErrIteratorDone = errors.New("buffer: iterator done")

// BlockBuffer is a bounded FIFO with blocking reads and writes.
type BlockBuffer[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// BlockN returns a BlockBuffer holding at most size elements.
func BlockN[T any](size int) *BlockBuffer[T] {
	if size <= 0 {
		size = 1
	}
	bb := &BlockBuffer[T]{buf: make([]T, size)}
	bb.cond = sync.NewCond(&bb.mu)
	return bb
}

func (bb *BlockBuffer[T]) size() int64 { return int64(len(bb.buf)) }

// waitReadable blocks until an element is present. It reports io.EOF when
// the writer closed and the queue drained.
func (bb *BlockBuffer[T]) waitReadable() error {
	for {
		if bb.closeErr != nil {
			return fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
		}
		if bb.head != bb.tail {
			return nil
		}
		if bb.closeWrite {
			return io.EOF
		}
		bb.cond.Wait()
	}
}

func (bb *BlockBuffer[T]) waitWritable() error {
	for {
		if bb.closeErr != nil {
			return fmt.Errorf("buffer: write to closed buffer: %w", bb.closeErr)
		}
		if bb.closeWrite {
			return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
		}
		if bb.tail-bb.head < bb.size() {
			return nil
		}
		bb.cond.Wait()
	}
}

// Add appends one element, blocking while the buffer is full.
func (bb *BlockBuffer[T]) Add(v T) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if err := bb.waitWritable(); err != nil {
		return err
	}
	bb.buf[bb.tail%bb.size()] = v
	bb.tail++
	bb.cond.Broadcast()
	return nil
}

// Next removes and returns the oldest element. It returns ErrIteratorDone
// after CloseWrite once the buffer is empty.
func (bb *BlockBuffer[T]) Next() (v T, err error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if err = bb.waitReadable(); err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrIteratorDone
		}
		return v, err
	}
	i := bb.head % bb.size()
	v = bb.buf[i]
	var zero T
	bb.buf[i] = zero
	bb.head++
	bb.cond.Broadcast()
	return v, nil
}

// Write appends all of p, blocking as often as needed.
func (bb *BlockBuffer[T]) Write(p []T) (int, error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	n := 0
	for n < len(p) {
		if err := bb.waitWritable(); err != nil {
			return n, err
		}
		for n < len(p) && bb.tail-bb.head < bb.size() {
			bb.buf[bb.tail%bb.size()] = p[n]
			bb.tail++
			n++
		}
		bb.cond.Broadcast()
	}
	return n, nil
}

// Read copies up to len(p) buffered elements into p. It blocks until at
// least one element is available.
func (bb *BlockBuffer[T]) Read(p []T) (int, error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if len(p) == 0 {
		return 0, nil
	}
	if err := bb.waitReadable(); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) && bb.head < bb.tail {
		p[n] = bb.buf[bb.head%bb.size()]
		bb.head++
		n++
	}
	bb.cond.Broadcast()
	return n, nil
}

// CloseWrite stops further writes. Readers drain what is left.
func (bb *BlockBuffer[T]) CloseWrite() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.closeWrite = true
	bb.cond.Broadcast()
	return nil
}

// CloseWithError fails all pending and future operations with err, or
// io.ErrClosedPipe when err is nil. Only the first call has effect.
func (bb *BlockBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr == nil {
		bb.closeErr = err
		bb.closeWrite = true
		bb.cond.Broadcast()
	}
	return nil
}

// Close is CloseWithError(nil).
func (bb *BlockBuffer[T]) Close() error {
	return bb.CloseWithError(nil)
}

// Err returns the error the buffer was closed with, if any.
func (bb *BlockBuffer[T]) Err() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.closeErr
}

// Len returns the number of buffered elements.
func (bb *BlockBuffer[T]) Len() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return int(bb.tail - bb.head)
}
