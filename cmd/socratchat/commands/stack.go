package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/socratchat/cmd/socratchat/internal/config"
	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/audio/portaudio"
	"github.com/haivivi/socratchat/pkg/audio/speaker"
	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/genx"
	"github.com/haivivi/socratchat/pkg/kv"
	"github.com/haivivi/socratchat/pkg/voice/capture"
	"github.com/haivivi/socratchat/pkg/voice/stt"
	"github.com/haivivi/socratchat/pkg/voice/tts"
	"github.com/haivivi/socratchat/pkg/voice/vad"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

// stack is every collaborator of a voice session, built from config.
type stack struct {
	services *config.Services
	chat     *chat.Controller
	session  *voicechat.Session
	closers  []func() error
}

type stackOptions struct {
	onEvent   func(voicechat.Event)
	onMessage func(chat.Message)
}

func newStack(ctx context.Context, svc *config.Services, opts stackOptions) (*stack, error) {
	s := &stack{services: svc}

	streamer, err := newStreamer(ctx, svc)
	if err != nil {
		return nil, err
	}
	var chatOpts []chat.Option
	if opts.onMessage != nil {
		chatOpts = append(chatOpts, chat.WithObserver(opts.onMessage))
	}
	s.chat = chat.NewController(streamer, chatOpts...)

	bridge := stt.NewBridge(&stt.Whisper{
		Client: groqClient(svc.Groq),
		Model:  svc.Groq.WhisperModel,
	})
	bridge.MinAudioBytes = svc.Voice.MinAudioBytes

	player, err := s.newPlayer(ctx, svc)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.session, err = voicechat.New(voicechat.Config{
		Capture: capture.NewUnit(&portaudio.Microphone{Format: pcm.L16Mono16K}, capture.Config{}),
		STT:     bridge,
		Chat:    s.chat,
		Player:  player,
		OnEvent: opts.onEvent,
		Settings: voicechat.Settings{
			MaxConsecutiveFailures: svc.Voice.MaxFailures,
			VAD: vad.Config{
				Threshold:       svc.Voice.Threshold,
				SilenceDuration: svc.Voice.SilenceDuration(),
			},
		},
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append([]func() error{s.session.Close}, s.closers...)
	return s, nil
}

// Close releases the session, then the cache.
func (s *stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func groqClient(g config.Groq) *openai.Client {
	client := openai.NewClient(option.WithAPIKey(g.APIKey), option.WithBaseURL(g.BaseURL))
	return &client
}

// newStreamer routes chat turns through a genx mux: "groq/" to Groq's
// OpenAI-compatible API and "gemini/" to Gemini.
func newStreamer(ctx context.Context, svc *config.Services) (chat.Streamer, error) {
	mux := genx.NewMux()
	if svc.Groq.APIKey != "" {
		if err := mux.Handle("groq/", &genx.OpenAIGenerator{
			Client:        groqClient(svc.Groq),
			Model:         svc.Groq.Model,
			UseSystemRole: true,
			UseMaxTokens:  true,
		}); err != nil {
			return nil, err
		}
	}
	if svc.Gemini.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  svc.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		model := svc.Gemini.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		if err := mux.Handle("gemini/", &genx.GeminiGenerator{Client: client, Model: model}); err != nil {
			return nil, err
		}
	}

	switch svc.Voice.ChatBackend {
	case "gemini":
		if svc.Gemini.APIKey == "" {
			return chat.MissingCredential{Name: config.EnvGeminiAPIKey}, nil
		}
		return &chat.GeneratorStreamer{Generator: mux, Model: "gemini/default"}, nil
	case "", "groq":
		if svc.Groq.APIKey == "" {
			return chat.MissingCredential{Name: config.EnvGroqAPIKey}, nil
		}
		return &chat.GeneratorStreamer{Generator: mux, Model: "groq/" + chat.DefaultModel}, nil
	default:
		return nil, fmt.Errorf("unknown chat backend %q", svc.Voice.ChatBackend)
	}
}

// newPlayer builds the cloud voice cascade over the speaker, with the
// platform speech command as the last resort.
func (s *stack) newPlayer(ctx context.Context, svc *config.Services) (*tts.Player, error) {
	player := &tts.Player{Local: tts.NewLocalSynthesizer()}

	def := svc.Voice.TTSProvider
	if def == "" {
		def = tts.ProviderPolly
		if svc.Polly.Region == "" {
			def = tts.ProviderOpenAI
		}
	}
	router := tts.NewRouter(def)
	if svc.Polly.Region != "" {
		client, err := newPollyClient(ctx, svc.Polly)
		if err != nil {
			return nil, err
		}
		if err := router.Handle(tts.ProviderPolly, tts.NewPolly(client, tts.WithPollyEngine(svc.Polly.Engine))); err != nil {
			return nil, err
		}
	}
	if svc.OpenAI.APIKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(svc.OpenAI.APIKey)}
		if svc.OpenAI.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(svc.OpenAI.BaseURL))
		}
		client := openai.NewClient(opts...)
		if err := router.Handle(tts.ProviderOpenAI, &tts.OpenAISpeech{Client: &client, Voice: svc.OpenAI.Voice}); err != nil {
			return nil, err
		}
	}
	if router.Providers() == 0 {
		slog.Info("socratchat: no cloud voice configured")
		return player, nil
	}

	out, err := speaker.Open(pcm.L16Mono24K)
	if err != nil {
		slog.Warn("socratchat: audio output unavailable, cloud voices disabled", "error", err)
		return player, nil
	}
	player.Output = tts.NewOutput(out)
	player.Voice = router

	var store kv.Store = kv.NewMemory()
	if svc.Voice.CacheDir != "" {
		disk, err := kv.NewBadger(kv.BadgerOptions{Dir: svc.Voice.CacheDir})
		if err != nil {
			return nil, err
		}
		store = disk
	}
	s.closers = append(s.closers, store.Close)
	player.Voice = tts.NewCached(router, store)
	return player, nil
}

func newPollyClient(ctx context.Context, p config.Polly) (*polly.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(p.Region)}
	if p.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return polly.NewFromConfig(cfg, func(o *polly.Options) {
		o.RetryMaxAttempts = 2
	}), nil
}
