package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/fallback"
)

// Encoder packs raw PCM into a container.
type Encoder interface {
	MIMEType() string
	Encode(f pcm.Format, raw []byte) ([]byte, error)
}

// PreferredMIMETypes is the order in which encoders are probed.
var PreferredMIMETypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	pcm.WAVMIMEType,
}

var (
	encodersMu sync.RWMutex
	encoders   = map[string]Encoder{pcm.WAVMIMEType: WAVEncoder{}}
)

// RegisterEncoder makes enc available under its MIME type.
func RegisterEncoder(enc Encoder) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	encoders[enc.MIMEType()] = enc
}

func lookupEncoder(mime string) (Encoder, error) {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	if enc, ok := encoders[mime]; ok {
		return enc, nil
	}
	return nil, fmt.Errorf("capture: no encoder for %s", mime)
}

// ResolveEncoder returns the first registered encoder in prefs, or the
// WAV encoder when none is.
func ResolveEncoder(prefs []string) Encoder {
	strategies := make([]fallback.Strategy[Encoder], 0, len(prefs))
	for _, mime := range prefs {
		strategies = append(strategies, fallback.Strategy[Encoder]{
			Name: mime,
			Run: func(context.Context) (Encoder, error) {
				return lookupEncoder(mime)
			},
		})
	}
	enc, _, err := fallback.First(context.Background(), strategies...)
	if err != nil {
		return WAVEncoder{}
	}
	return enc
}

// WAVEncoder writes canonical PCM WAV files. It is always registered.
type WAVEncoder struct{}

func (WAVEncoder) MIMEType() string { return pcm.WAVMIMEType }

func (WAVEncoder) Encode(f pcm.Format, raw []byte) ([]byte, error) {
	return pcm.EncodeWAV(f, raw), nil
}
