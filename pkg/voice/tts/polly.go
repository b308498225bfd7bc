package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// ProviderPolly names the Amazon Polly voice.
const ProviderPolly = "aws-polly"

// PollyClient abstracts the Polly API used by [Polly].
// The [polly.Client] type satisfies this interface.
type PollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly synthesizes MP3 with Amazon Polly.
type Polly struct {
	client     PollyClient
	sampleRate int
	engine     string
}

var _ CloudVoice = (*Polly)(nil)

// PollyOption configures a Polly voice.
type PollyOption func(*Polly)

// WithPollySampleRate sets the MP3 sample rate. Default 24000.
func WithPollySampleRate(rate int) PollyOption {
	return func(p *Polly) {
		p.sampleRate = rate
	}
}

// WithPollyEngine sets the engine used when Options.Engine is empty.
func WithPollyEngine(engine string) PollyOption {
	return func(p *Polly) {
		p.engine = engine
	}
}

// NewPolly returns a Polly voice.
func NewPolly(client PollyClient, opts ...PollyOption) *Polly {
	p := &Polly{client: client, sampleRate: 24000}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Polly) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	in := &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   aws.String(strconv.Itoa(p.sampleRate)),
		VoiceId:      types.VoiceId(opts.Voice),
	}
	if opts.Voice == "" {
		in.VoiceId = types.VoiceId(LocaleFor(opts.Language).Voice)
	}
	if opts.Language != "" {
		in.LanguageCode = types.LanguageCode(opts.Language)
	}
	engine := opts.Engine
	if engine == "" {
		engine = p.engine
	}
	if engine != "" {
		in.Engine = types.Engine(engine)
	}
	out, err := p.client.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("tts: polly: %w", describePollyError(err))
	}
	defer out.AudioStream.Close()
	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("tts: polly: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("tts: polly: empty audio")
	}
	return &Clip{MIMEType: MIMEMP3, Data: data, SampleRate: p.sampleRate}, nil
}

// describePollyError keeps the service error code visible in logs.
func describePollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return err
}
