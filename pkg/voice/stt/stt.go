// Package stt turns finished recordings into text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haivivi/socratchat/pkg/voice/capture"
)

// MinAudioBytes is the smallest encoded recording worth sending.
const MinAudioBytes = 1000

var (
	// ErrTooShort means the recording cannot contain speech. Callers
	// restart listening instead of reporting a failure.
	ErrTooShort = errors.New("stt: recording too short")
	// ErrTranscription wraps transport and service failures.
	ErrTranscription = errors.New("stt: transcription failed")
)

// Transcriber is a speech recognition service. It returns an empty string
// when nothing was recognized.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeHint string) (string, error)
}

// Bridge guards a Transcriber with the minimum-size check.
type Bridge struct {
	Transcriber Transcriber
	// MinAudioBytes overrides the package default when positive.
	MinAudioBytes int
}

// NewBridge returns a Bridge over t.
func NewBridge(t Transcriber) *Bridge {
	return &Bridge{Transcriber: t}
}

// TooShort reports whether rec is below the minimum size.
func (b *Bridge) TooShort(rec *capture.Recording) bool {
	minBytes := b.MinAudioBytes
	if minBytes <= 0 {
		minBytes = MinAudioBytes
	}
	return rec.Len() < minBytes
}

// Transcribe returns the trimmed transcript of rec. A cancelled ctx is
// returned as is so callers can tell it apart from a service failure.
func (b *Bridge) Transcribe(ctx context.Context, rec *capture.Recording) (string, error) {
	if b.TooShort(rec) {
		slog.Debug("stt: recording too short", "bytes", rec.Len())
		return "", ErrTooShort
	}
	text, err := b.Transcriber.TranscribeAudio(ctx, rec.Data, rec.MIMEType)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	slog.Debug("stt: transcribed", "bytes", rec.Len(), "chars", len(text))
	return text, nil
}
