package resampler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
)

// ErrInvalidFormat is returned for formats with a non-positive rate.
var ErrInvalidFormat = errors.New("resampler: invalid format")

// Reader pulls PCM from a source in one format and yields it in another.
// It must be closed to release the conversion state.
type Reader struct {
	src    *frameReader
	srcFmt Format
	dstFmt Format

	mu       sync.Mutex
	rs       resampling.Resampler
	pending  []byte
	readBuf  []byte
	floats   []float64
	closeErr error
}

// New returns a Reader converting src from srcFmt to dstFmt.
func New(src io.Reader, srcFmt, dstFmt Format) (*Reader, error) {
	if srcFmt.SampleRate <= 0 || dstFmt.SampleRate <= 0 {
		return nil, ErrInvalidFormat
	}
	r := &Reader{
		src:    newFrameReader(src, srcFmt.frameBytes()),
		srcFmt: srcFmt,
		dstFmt: dstFmt,
	}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		r.rs = rs
	}
	return r, nil
}

// Convert resamples a complete buffer in one call.
func Convert(data []byte, srcFmt, dstFmt Format) ([]byte, error) {
	if srcFmt == dstFmt {
		return data, nil
	}
	r, err := New(bytes.NewReader(data), srcFmt, dstFmt)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Read fills p with converted audio. Returned lengths are whole frames.
func (r *Reader) Read(p []byte) (int, error) {
	fb := r.dstFmt.frameBytes()
	if len(p) < fb {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fb*fb]

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.pending) == 0 {
		if r.closeErr != nil {
			return 0, r.closeErr
		}
		out, err := r.fill(len(p))
		r.pending = append(r.pending, out...)
		if err != nil {
			if len(r.pending) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// fill reads roughly enough source audio to produce want output bytes.
func (r *Reader) fill(want int) ([]byte, error) {
	need := want
	if r.rs != nil {
		need = int(float64(want)*float64(r.srcFmt.SampleRate)/float64(r.dstFmt.SampleRate)) + 8*r.srcFmt.frameBytes()
	}
	need = need / r.dstFmt.frameBytes() * r.srcFmt.frameBytes()
	if need < r.srcFmt.frameBytes() {
		need = r.srcFmt.frameBytes()
	}
	if cap(r.readBuf) < 2*need {
		r.readBuf = make([]byte, 2*need)
	}
	n, readErr := r.src.Read(r.readBuf[:need])
	if n == 0 {
		if readErr == nil {
			return nil, nil
		}
		return nil, readErr
	}
	chunk := remix(r.readBuf[:2*need], n, r.srcFmt, r.dstFmt)
	if r.rs == nil {
		return append([]byte(nil), chunk...), readErr
	}
	r.floats = pcm.Int16ToFloat(r.floats, chunk)
	out, err := r.rs.Process(r.floats)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	b := pcm.FloatToInt16(nil, out)
	return b[:len(b)/r.dstFmt.frameBytes()*r.dstFmt.frameBytes()], readErr
}

// Close releases the converter. Later reads fail with io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError makes later reads fail with err.
func (r *Reader) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.rs = nil
	r.pending = nil
	return nil
}

// remix converts the channel layout of buf[:n] in place. buf must have room
// for twice n bytes when upmixing.
func remix(buf []byte, n int, src, dst Format) []byte {
	switch {
	case src.Stereo && !dst.Stereo:
		frames := n / 4
		for i := range frames {
			l := int32(int16(uint16(buf[4*i]) | uint16(buf[4*i+1])<<8))
			rr := int32(int16(uint16(buf[4*i+2]) | uint16(buf[4*i+3])<<8))
			m := uint16(int16((l + rr) / 2))
			buf[2*i], buf[2*i+1] = byte(m), byte(m>>8)
		}
		return buf[:frames*2]
	case !src.Stereo && dst.Stereo:
		samples := n / 2
		for i := samples - 1; i >= 0; i-- {
			lo, hi := buf[2*i], buf[2*i+1]
			buf[4*i], buf[4*i+1], buf[4*i+2], buf[4*i+3] = lo, hi, lo, hi
		}
		return buf[:samples*4]
	}
	return buf[:n]
}
