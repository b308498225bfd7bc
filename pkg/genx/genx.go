package genx

import (
	"context"
	"iter"

	"github.com/goccy/go-yaml"
)

// Stream yields chunks until it returns an error. A normal end is reported
// as an error wrapping ErrDone.
type Stream interface {
	Next() (*MessageChunk, error)
	Close() error
	CloseWithError(error) error
}

// ModelParams are the sampling parameters forwarded to the provider. Zero
// values are left to provider defaults.
type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitempty"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero" yaml:"frequency_penalty,omitempty"`
	N                int     `json:"n,omitzero" yaml:"n,omitempty"`
	Temperature      float32 `json:"temperature,omitzero" yaml:"temperature,omitempty"`
	TopP             float32 `json:"top_p,omitzero" yaml:"top_p,omitempty"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero" yaml:"presence_penalty,omitempty"`
	TopK             float32 `json:"top_k,omitzero" yaml:"top_k,omitempty"`
}

// Prompt is a system instruction.
type Prompt struct {
	Name string
	Text string
}

// ModelContext is everything a generator needs for one request.
type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	Params() *ModelParams
}

// Generator produces a stream for the given model.
type Generator interface {
	GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error)
}

// Usage counts tokens for one generation.
type Usage struct {
	PromptTokenCount        int64
	CachedContentTokenCount int64
	GeneratedTokenCount     int64
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"usage": {
			"prompt":    u.PromptTokenCount,
			"cached":    u.CachedContentTokenCount,
			"generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}
