package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/buffer"
)

// Session is one open recording. It is safe for concurrent use.
type Session struct {
	unit   *Unit
	stream Stream
	format pcm.Format
	enc    Encoder
	window *buffer.RingBuffer[float64]

	stopping atomic.Bool
	done     chan struct{}

	mu      sync.Mutex
	raw     bytes.Buffer
	err     error
	settled bool
	aborted bool
	rec     *Recording
	recErr  error
}

func (s *Session) start(stream Stream, windowSamples int, enc Encoder) {
	s.stream = stream
	s.format = stream.Format()
	s.enc = enc
	s.window = buffer.RingN[float64](windowSamples)
	s.done = make(chan struct{})
	go s.pump()
}

func (s *Session) pump() {
	defer close(s.done)
	defer func() {
		if err := s.stream.Close(); err != nil {
			slog.Debug("capture: close stream", "error", err)
		}
	}()

	frame := make([]byte, s.format.BytesInDuration(frameDuration))
	var samples []float64
	for !s.stopping.Load() {
		n, err := s.stream.Read(frame)
		if n > 0 {
			n -= n % 2
			s.mu.Lock()
			s.raw.Write(frame[:n])
			s.mu.Unlock()
			samples = pcm.Int16ToFloat(samples[:0], frame[:n])
			s.window.Write(samples)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || s.stopping.Load() {
			return
		}
		s.mu.Lock()
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDevice) {
			s.err = err
		} else {
			s.err = fmt.Errorf("%w: %w", ErrDevice, err)
		}
		s.mu.Unlock()
		slog.Warn("capture: read failed", "error", err)
		return
	}
}

// Format returns the PCM format of the raw capture.
func (s *Session) Format() pcm.Format { return s.format }

// Done is closed when the capture loop exits, either because the session
// was stopped or aborted or because the device failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the device failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Window copies the newest analysis samples into dst, right-aligned, and
// returns how many were available.
func (s *Session) Window(dst []float64) int {
	return s.window.Snapshot(dst)
}

// Buffered returns the number of raw PCM bytes captured so far.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw.Len()
}

// Stop ends the capture and returns the encoded recording. Calling Stop
// again returns the same result. If ctx ends before the device has been
// released the session is aborted instead.
func (s *Session) Stop(ctx context.Context) (*Recording, error) {
	s.stopping.Store(true)
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Abort()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		if s.aborted {
			return nil, ErrAborted
		}
		return s.rec, s.recErr
	}
	s.settled = true
	defer s.unit.release(s)

	if s.err != nil && s.raw.Len() == 0 {
		s.recErr = s.err
		return nil, s.recErr
	}
	raw := s.raw.Bytes()
	data, err := s.enc.Encode(s.format, raw)
	if err != nil {
		s.recErr = fmt.Errorf("capture: encode %s: %w", s.enc.MIMEType(), err)
		return nil, s.recErr
	}
	s.rec = &Recording{
		MIMEType: s.enc.MIMEType(),
		Data:     data,
		Format:   s.format,
		Duration: s.format.Duration(len(raw)),
	}
	slog.Debug("capture: session stopped", "bytes", len(data), "duration", s.rec.Duration)
	return s.rec, nil
}

// Abort ends the capture and discards everything recorded. It is a no-op
// once the session has been stopped or aborted.
func (s *Session) Abort() {
	s.stopping.Store(true)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.settled = true
	s.aborted = true
	s.raw.Reset()
	s.window.Reset()
	s.unit.release(s)
	slog.Debug("capture: session aborted")
}
