package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
)

// ProviderOpenAI names the OpenAI speech voice.
const ProviderOpenAI = "openai"

// OpenAISpeech synthesizes raw 24 kHz PCM through audio/speech.
type OpenAISpeech struct {
	Client *openai.Client
	// Model defaults to tts-1.
	Model string
	// Voice is used when Options.Voice is not an OpenAI voice. Default alloy.
	Voice string
}

var _ CloudVoice = (*OpenAISpeech)(nil)

var openAIVoices = map[string]bool{
	"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true,
	"fable": true, "onyx": true, "nova": true, "sage": true, "shimmer": true, "verse": true,
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	model := s.Model
	if model == "" {
		model = string(openai.SpeechModelTTS1)
	}
	voice := strings.ToLower(opts.Voice)
	if !openAIVoices[voice] {
		voice = s.Voice
	}
	if voice == "" {
		voice = "alloy"
	}
	resp, err := s.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: openai speech: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: openai speech: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("tts: openai speech: empty audio")
	}
	return &Clip{MIMEType: MIMEPCM, Data: data, SampleRate: 24000}, nil
}
