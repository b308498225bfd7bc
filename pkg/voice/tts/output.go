package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/audio/resampler"
)

// Speaker renders mono s16 PCM in its own format and returns when the
// audio has been heard or ctx is done.
type Speaker interface {
	Format() pcm.Format
	Play(ctx context.Context, data []byte) error
}

// Output decodes clips and plays them on a Speaker.
type Output struct {
	Speaker Speaker
}

// NewOutput returns an Output playing on sp.
func NewOutput(sp Speaker) *Output {
	return &Output{Speaker: sp}
}

// PlayClip decodes clip, converts it to the speaker format and plays it.
func (o *Output) PlayClip(ctx context.Context, clip *Clip) error {
	raw, src, err := DecodeClip(clip)
	if err != nil {
		return err
	}
	dst := resampler.Format{SampleRate: o.Speaker.Format().SampleRate()}
	data, err := resampler.Convert(raw, src, dst)
	if err != nil {
		return fmt.Errorf("tts: convert clip: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: no samples", ErrUnsupportedClip)
	}
	return o.Speaker.Play(ctx, data)
}

// DecodeClip returns the PCM samples of clip and their layout.
func DecodeClip(clip *Clip) ([]byte, resampler.Format, error) {
	if clip == nil || len(clip.Data) == 0 {
		return nil, resampler.Format{}, fmt.Errorf("%w: empty", ErrUnsupportedClip)
	}
	mime := clip.MIMEType
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case MIMEMP3, "audio/mp3":
		dec, err := mp3.NewDecoder(bytes.NewReader(clip.Data))
		if err != nil {
			return nil, resampler.Format{}, fmt.Errorf("tts: decode mp3: %w", err)
		}
		data, err := io.ReadAll(dec)
		if err != nil {
			return nil, resampler.Format{}, fmt.Errorf("tts: decode mp3: %w", err)
		}
		return data, resampler.Format{SampleRate: dec.SampleRate(), Stereo: true}, nil
	case MIMEWAV, "audio/x-wav", "audio/wave":
		info, data, err := pcm.DecodeWAV(clip.Data)
		if err != nil {
			return nil, resampler.Format{}, fmt.Errorf("tts: decode wav: %w", err)
		}
		if info.Channels > 2 {
			return nil, resampler.Format{}, fmt.Errorf("%w: %d channels", ErrUnsupportedClip, info.Channels)
		}
		return data, resampler.Format{SampleRate: info.SampleRate, Stereo: info.Channels == 2}, nil
	case MIMEPCM:
		rate := clip.SampleRate
		if rate <= 0 {
			rate = 24000
		}
		return clip.Data, resampler.Format{SampleRate: rate}, nil
	}
	return nil, resampler.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedClip, clip.MIMEType)
}
