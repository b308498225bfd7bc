// Package speaker plays PCM on the default output device through oto.
//
// oto allows a single context per process, so the first Open fixes the
// output format for the lifetime of the program.
package speaker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/voice/tts"
)

var (
	ctxOnce   sync.Once
	otoCtx    *oto.Context
	ctxFormat pcm.Format
	ctxErr    error
)

// Speaker renders mono s16 PCM. Play calls are serialized.
type Speaker struct {
	format pcm.Format
	mu     sync.Mutex
}

var _ tts.Speaker = (*Speaker)(nil)

// Open returns a Speaker in format. Later calls with a different format
// fail because the device is already configured.
func Open(format pcm.Format) (*Speaker, error) {
	ctxOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, ctxErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate(),
			ChannelCount: format.Channels(),
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if ctxErr == nil {
			<-ready
			ctxFormat = format
			slog.Debug("speaker: output opened", "format", format.String())
		}
	})
	if ctxErr != nil {
		return nil, fmt.Errorf("speaker: open output: %w", ctxErr)
	}
	if format != ctxFormat {
		return nil, fmt.Errorf("speaker: output already opened as %s", ctxFormat)
	}
	return &Speaker{format: format}, nil
}

func (s *Speaker) Format() pcm.Format { return s.format }

// Play blocks until data has been heard or ctx is done, in which case
// playback stops immediately.
func (s *Speaker) Play(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := otoCtx.NewPlayer(bytes.NewReader(data))
	defer player.Close()
	player.Play()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("speaker: play: %w", err)
	}
	return nil
}
