package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// DefaultWhisperModel is the Groq-hosted Whisper model.
const DefaultWhisperModel = "whisper-large-v3-turbo"

var transcriptQuery = mustParse(`.text // .transcript // ""`)

func mustParse(expr string) *gojq.Query {
	q, err := gojq.Parse(expr)
	if err != nil {
		panic(fmt.Sprintf("stt: invalid jq expression %q: %v", expr, err))
	}
	return q
}

// Whisper transcribes through an OpenAI-compatible audio/transcriptions
// endpoint (Groq or OpenAI).
type Whisper struct {
	Client *openai.Client
	// Model defaults to DefaultWhisperModel.
	Model string
	// Language is an optional ISO-639-1 hint.
	Language string
}

var _ Transcriber = (*Whisper)(nil)

func (w *Whisper) TranscribeAudio(ctx context.Context, audio []byte, mimeHint string) (string, error) {
	model := w.Model
	if model == "" {
		model = DefaultWhisperModel
	}
	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio), fileName(mimeHint), contentType(mimeHint)),
		Model:          openai.AudioModel(model),
		Temperature:    param.NewOpt(0.0),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if w.Language != "" {
		params.Language = param.NewOpt(w.Language)
	}
	resp, err := w.Client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("stt: whisper: %w", err)
	}
	return extractTranscript(ctx, resp.RawJSON())
}

// extractTranscript pulls the text out of a transcription response body.
func extractTranscript(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	iter := transcriptQuery.RunWithContext(ctx, v)
	out, ok := iter.Next()
	if !ok {
		return "", nil
	}
	switch x := out.(type) {
	case error:
		return "", fmt.Errorf("stt: extract transcript: %w", x)
	case string:
		return x, nil
	default:
		return "", nil
	}
}

func fileName(mime string) string {
	switch {
	case strings.Contains(mime, "mp4"):
		return "audio.mp4"
	case strings.Contains(mime, "ogg"):
		return "audio.ogg"
	case strings.Contains(mime, "wav"):
		return "audio.wav"
	default:
		return "audio.webm"
	}
}

func contentType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" {
		return "audio/webm"
	}
	return mime
}
