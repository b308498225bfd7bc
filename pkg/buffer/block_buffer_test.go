package buffer

import (
	"errors"
	"io"
	"sync"
	"testing"
)

func TestBlockBufferFIFO(t *testing.T) {
	bb := BlockN[int](2)
	done := make(chan error, 1)
	go func() {
		if _, err := bb.Write([]int{1, 2, 3, 4, 5}); err != nil {
			done <- err
			return
		}
		done <- bb.CloseWrite()
	}()

	var got []int
	for {
		v, err := bb.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, v)
	}
	if err := <-done; err != nil {
		t.Fatalf("producer: %v", err)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBlockBufferReadEOF(t *testing.T) {
	bb := BlockN[byte](8)
	if _, err := bb.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	bb.CloseWrite()

	p := make([]byte, 8)
	n, err := bb.Read(p)
	if err != nil || string(p[:n]) != "abc" {
		t.Fatalf("read = %q, %v", p[:n], err)
	}
	if _, err := bb.Read(p); err != io.EOF {
		t.Fatalf("read after drain = %v, want EOF", err)
	}
	if err := bb.Add('x'); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("add after CloseWrite = %v", err)
	}
}

func TestBlockBufferCloseWithErrorUnblocks(t *testing.T) {
	bb := BlockN[int](1)
	boom := errors.New("boom")

	var wg sync.WaitGroup
	wg.Add(1)
	var nextErr error
	go func() {
		defer wg.Done()
		_, nextErr = bb.Next()
	}()

	bb.CloseWithError(boom)
	wg.Wait()
	if !errors.Is(nextErr, boom) {
		t.Fatalf("next err = %v, want %v", nextErr, boom)
	}
	if !errors.Is(bb.Err(), boom) {
		t.Fatalf("Err() = %v", bb.Err())
	}
	bb.CloseWithError(errors.New("second"))
	if !errors.Is(bb.Err(), boom) {
		t.Fatalf("second close replaced error: %v", bb.Err())
	}
}

func TestBlockBufferLen(t *testing.T) {
	bb := BlockN[int](4)
	bb.Add(1)
	bb.Add(2)
	if bb.Len() != 2 {
		t.Fatalf("Len = %d", bb.Len())
	}
	bb.Next()
	if bb.Len() != 1 {
		t.Fatalf("Len = %d", bb.Len())
	}
}
