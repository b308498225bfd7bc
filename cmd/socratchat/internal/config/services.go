package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Service names, one YAML file each.
const (
	ServiceGroq   = "groq"
	ServiceGemini = "gemini"
	ServiceOpenAI = "openai"
	ServicePolly  = "polly"
	ServiceVoice  = "voice"
)

// Environment variables read when a value is not configured.
const (
	EnvGroqAPIKey       = "GROQ_API_KEY"
	EnvPublicGroqAPIKey = "NEXT_PUBLIC_GROQ_API_KEY"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvAWSRegion        = "AWS_REGION"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Groq backs chat and transcription.
type Groq struct {
	APIKey       string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`
	WhisperModel string `yaml:"whisper_model,omitempty" json:"whisper_model,omitempty"`
}

// Gemini is the alternate chat backend.
type Gemini struct {
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty" json:"model,omitempty"`
}

// OpenAI is a cloud voice.
type OpenAI struct {
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Voice   string `yaml:"voice,omitempty" json:"voice,omitempty"`
}

// Polly is a cloud voice. Empty keys use the default AWS credential chain.
type Polly struct {
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
	Engine          string `yaml:"engine,omitempty" json:"engine,omitempty"`
}

// Voice tunes the voice session.
type Voice struct {
	// Threshold is the speech energy threshold, 0..255. Default 15.
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// SilenceMS ends a hands-free turn. Default 1500.
	SilenceMS int `yaml:"silence_ms,omitempty" json:"silence_ms,omitempty"`
	// MaxFailures ends hands-free after that many failed turns. Default 5.
	MaxFailures int `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	// CacheDir holds synthesized speech. Empty keeps the cache in memory
	// for the life of the process.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	// TTSProvider is the default cloud voice: aws-polly or openai.
	TTSProvider string `yaml:"tts_provider,omitempty" json:"tts_provider,omitempty"`
	// MinAudioBytes overrides the smallest recording worth transcribing.
	MinAudioBytes int `yaml:"min_audio_bytes,omitempty" json:"min_audio_bytes,omitempty"`
	// ChatBackend is groq (default) or gemini.
	ChatBackend string `yaml:"chat_backend,omitempty" json:"chat_backend,omitempty"`
}

// SilenceDuration returns SilenceMS as a duration, or zero for the default.
func (v Voice) SilenceDuration() time.Duration {
	return time.Duration(v.SilenceMS) * time.Millisecond
}

// Services is the resolved configuration of every service.
type Services struct {
	Groq   Groq   `yaml:"groq" json:"groq"`
	Gemini Gemini `yaml:"gemini" json:"gemini"`
	OpenAI OpenAI `yaml:"openai" json:"openai"`
	Polly  Polly  `yaml:"polly" json:"polly"`
	Voice  Voice  `yaml:"voice" json:"voice"`
}

// LoadEnv loads .env.local and then .env from dir into the process
// environment. Variables already set are kept and missing files skipped.
func LoadEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Resolve reads every service file in contextDir, which may be empty, and
// fills what is missing from getenv.
func Resolve(contextDir string, getenv func(string) string) (*Services, error) {
	var s Services
	if contextDir != "" {
		if err := loadInto(contextDir, ServiceGroq, &s.Groq); err != nil {
			return nil, err
		}
		if err := loadInto(contextDir, ServiceGemini, &s.Gemini); err != nil {
			return nil, err
		}
		if err := loadInto(contextDir, ServiceOpenAI, &s.OpenAI); err != nil {
			return nil, err
		}
		if err := loadInto(contextDir, ServicePolly, &s.Polly); err != nil {
			return nil, err
		}
		if err := loadInto(contextDir, ServiceVoice, &s.Voice); err != nil {
			return nil, err
		}
	}

	fill(&s.Groq.APIKey, getenv(EnvGroqAPIKey), getenv(EnvPublicGroqAPIKey))
	fill(&s.Groq.BaseURL, DefaultGroqBaseURL)
	fill(&s.Gemini.APIKey, getenv(EnvGeminiAPIKey))
	fill(&s.OpenAI.APIKey, getenv(EnvOpenAIAPIKey))
	fill(&s.Polly.Region, getenv(EnvAWSRegion))
	return &s, nil
}

func loadInto[T any](contextDir, service string, dst *T) error {
	v, err := LoadService[T](contextDir, service)
	if errors.Is(err, ErrServiceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	*dst = *v
	return nil
}

// fill sets *dst to the first non-empty candidate when it is empty.
func fill(dst *string, candidates ...string) {
	if *dst != "" {
		return
	}
	for _, c := range candidates {
		if c != "" {
			*dst = c
			return
		}
	}
}

// Redacted returns a copy with secrets masked for display.
func (s Services) Redacted() Services {
	s.Groq.APIKey = mask(s.Groq.APIKey)
	s.Gemini.APIKey = mask(s.Gemini.APIKey)
	s.OpenAI.APIKey = mask(s.OpenAI.APIKey)
	s.Polly.AccessKeyID = mask(s.Polly.AccessKeyID)
	s.Polly.SecretAccessKey = mask(s.Polly.SecretAccessKey)
	return s
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****" + secret[len(secret)-4:]
	}
}
