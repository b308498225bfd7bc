// Package portaudio captures microphone audio through the PortAudio
// library.
//
// For go build: requires portaudio installed via pkg-config
// (brew install portaudio, apt install portaudio19-dev).
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/voice/capture"
)

var (
	refMu sync.Mutex
	refs  int
)

// acquire initializes PortAudio on first use. Every successful acquire
// must be paired with release.
func acquire() error {
	refMu.Lock()
	defer refMu.Unlock()
	if refs == 0 {
		if err := pa.Initialize(); err != nil {
			return err
		}
	}
	refs++
	return nil
}

func release() {
	refMu.Lock()
	defer refMu.Unlock()
	if refs == 0 {
		return
	}
	refs--
	if refs == 0 {
		if err := pa.Terminate(); err != nil {
			slog.Debug("portaudio: terminate", "error", err)
		}
	}
}

// DeviceInfo describes an audio device.
type DeviceInfo struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	HostAPI           string  `json:"host_api" yaml:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels" yaml:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels" yaml:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	IsDefaultInput    bool    `json:"is_default_input" yaml:"is_default_input"`
}

// Devices lists the audio devices PortAudio can see.
func Devices() ([]DeviceInfo, error) {
	if err := acquire(); err != nil {
		return nil, classify(err)
	}
	defer release()

	all, err := pa.Devices()
	if err != nil {
		return nil, classify(err)
	}
	def, _ := pa.DefaultInputDevice()
	out := make([]DeviceInfo, 0, len(all))
	for _, d := range all {
		info := DeviceInfo{
			Index:             d.Index,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefaultInput:    def != nil && def.Index == d.Index,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// Microphone opens the default input device.
type Microphone struct {
	// Format is the capture format. Default pcm.L16Mono16K.
	Format pcm.Format
	// FrameDuration is the length of each device read. Default 20ms.
	FrameDuration time.Duration
}

var _ capture.Microphone = (*Microphone)(nil)

// Open starts a capture stream on the default input device.
func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format := m.Format
	frameDur := m.FrameDuration
	if frameDur <= 0 {
		frameDur = 20 * time.Millisecond
	}
	frames := format.SamplesInDuration(frameDur)

	if err := acquire(); err != nil {
		return nil, classify(err)
	}
	buf := make([]int16, frames)
	stream, err := pa.OpenDefaultStream(format.Channels(), 0, float64(format.SampleRate()), frames, buf)
	if err != nil {
		release()
		return nil, classify(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		release()
		return nil, classify(err)
	}
	slog.Debug("portaudio: input stream opened", "format", format.String(), "frames", frames)
	return &inputStream{stream: stream, format: format, buf: buf}, nil
}

type inputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	format pcm.Format
	buf    []int16
	closed bool
}

func (s *inputStream) Format() pcm.Format { return s.format }

// Read fills p with one device buffer. p must hold at least one frame.
func (s *inputStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	if len(p) < 2*len(s.buf) {
		return 0, io.ErrShortBuffer
	}
	if err := s.stream.Read(); err != nil {
		if errors.Is(err, pa.InputOverflowed) {
			slog.Debug("portaudio: input overflowed")
		} else {
			return 0, classify(err)
		}
	}
	out := pcm.Int16ToBytes(p[:0], s.buf)
	return len(out), nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer release()
	if err := s.stream.Stop(); err != nil {
		slog.Debug("portaudio: stop stream", "error", err)
	}
	return s.stream.Close()
}

// classify maps PortAudio failures onto the capture error kinds.
func classify(err error) error {
	var host pa.UnanticipatedHostError
	if errors.As(err, &host) && isPermissionText(host.Text) {
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}
	if isPermissionText(err.Error()) {
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", capture.ErrDevice, err)
}

func isPermissionText(s string) bool {
	s = strings.ToLower(s)
	for _, k := range []string{"permission", "not permitted", "access denied", "not authorized"} {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
