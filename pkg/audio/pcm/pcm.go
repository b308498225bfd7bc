package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Format is one of the linear PCM layouts the pipeline uses.
type Format int

const (
	// L16Mono16K is audio/L16; rate=16000; channels=1.
	L16Mono16K Format = iota
	// L16Mono24K is audio/L16; rate=24000; channels=1.
	L16Mono24K
	// L16Mono48K is audio/L16; rate=48000; channels=1.
	L16Mono48K
)

// FormatForRate returns the mono format sampled at rate.
func FormatForRate(rate int) (Format, error) {
	switch rate {
	case 16000:
		return L16Mono16K, nil
	case 24000:
		return L16Mono24K, nil
	case 48000:
		return L16Mono48K, nil
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", rate)
}

// SampleRate returns the rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono24K:
		return 24000
	case L16Mono48K:
		return 48000
	}
	panic("pcm: invalid format")
}

// Channels is always 1.
func (f Format) Channels() int { return 1 }

// Depth is the bit depth, always 16.
func (f Format) Depth() int { return 16 }

// BytesRate returns the number of bytes per second of audio.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// SamplesInDuration returns the sample count covering d.
func (f Format) SamplesInDuration(d time.Duration) int {
	return int(int64(f.SampleRate()) * int64(d) / int64(time.Second))
}

// BytesInDuration returns the byte count covering d.
func (f Format) BytesInDuration(d time.Duration) int {
	return f.SamplesInDuration(d) * f.Channels() * f.Depth() / 8
}

// Duration returns how long n bytes of audio last.
func (f Format) Duration(n int) time.Duration {
	samples := int64(n) * 8 / int64(f.Depth()) / int64(f.Channels())
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate())
}

// String returns the MIME-like description of f.
func (f Format) String() string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=%d", f.SampleRate(), f.Channels())
}

// DataChunk is a slice of audio in a known format.
type DataChunk struct {
	Format Format
	Data   []byte
}

// Duration returns the playing time of the chunk.
func (c *DataChunk) Duration() time.Duration {
	return c.Format.Duration(len(c.Data))
}

// Int16ToFloat converts little-endian 16-bit samples in p into dst as
// values in [-1, 1). It returns the filled prefix of dst, growing it if
// needed.
func Int16ToFloat(dst []float64, p []byte) []float64 {
	n := len(p) / 2
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = float64(int16(binary.LittleEndian.Uint16(p[2*i:]))) / 32768
	}
	return dst
}

// FloatToInt16 encodes float samples as little-endian 16-bit PCM,
// clipping to the representable range.
func FloatToInt16(dst []byte, samples []float64) []byte {
	n := len(samples) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		v := math.Round(s * 32768)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(v)))
	}
	return dst
}

// Int16ToBytes encodes native samples as little-endian PCM.
func Int16ToBytes(dst []byte, samples []int16) []byte {
	n := len(samples) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return dst
}
