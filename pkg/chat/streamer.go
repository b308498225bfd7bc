package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/haivivi/socratchat/pkg/fallback"
	"github.com/haivivi/socratchat/pkg/genx"
)

// DefaultModel is the Groq chat model.
const DefaultModel = "llama-3.3-70b-versatile"

// DefaultParams are the sampling parameters of a Socratic reply.
func DefaultParams() *genx.ModelParams {
	return &genx.ModelParams{
		MaxTokens:        200,
		Temperature:      0.1,
		TopP:             0.95,
		FrequencyPenalty: 0.5,
		PresencePenalty:  0.5,
	}
}

// Meditations are emitted by GeneratorStreamer when the model ends a
// reply without any text.
var Meditations = []string{
	"🤔 Hmm, laisse-moi méditer là-dessus...",
	"Comme Socrate disait : 'Je sais que je ne sais rien.' Reformule ta question ?",
	"La sagesse demande parfois un moment de réflexion...",
	"Une question profonde mérite une réponse réfléchie. Réessaie !",
}

// GeneratorStreamer sends each turn as a single user message, preceded by
// the system prompt, to a genx generator.
type GeneratorStreamer struct {
	Generator genx.Generator
	// Model is the pattern passed to the generator. Default DefaultModel.
	Model string
	// SystemPrompt defaults to SystemPrompt.
	SystemPrompt string
	// Params default to DefaultParams().
	Params *genx.ModelParams
	// Rand picks a meditation. Default math/rand/v2.
	Rand func(n int) int
}

var _ Streamer = (*GeneratorStreamer)(nil)

func (g *GeneratorStreamer) StreamChatCompletion(ctx context.Context, text string, onChunk func(string)) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("chat: message is required")
	}
	model := g.Model
	if model == "" {
		model = DefaultModel
	}
	prompt := g.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt
	}
	params := g.Params
	if params == nil {
		params = DefaultParams()
	}

	var mcb genx.ModelContextBuilder
	mcb.PromptText("socratchat", prompt)
	mcb.UserText("", text)
	mcb.Params = params

	stream, err := g.Generator.GenerateStream(ctx, model, mcb.Build())
	if err != nil {
		return fmt.Errorf("chat: generate: %w", err)
	}
	full, err := genx.CollectText(stream, onChunk)
	if err != nil {
		return fmt.Errorf("chat: stream: %w", err)
	}
	if strings.TrimSpace(full) == "" {
		rnd := g.Rand
		if rnd == nil {
			rnd = rand.IntN
		}
		onChunk(fallback.Pick(Meditations, rnd))
	}
	return nil
}

// MissingCredential is the Streamer used when no API key is configured.
// Every turn fails with ErrMissingCredential.
type MissingCredential struct {
	// Name is the missing setting, for example GROQ_API_KEY.
	Name string
}

var _ Streamer = MissingCredential{}

func (m MissingCredential) StreamChatCompletion(context.Context, string, func(string)) error {
	return fmt.Errorf("%w: %s is not set", ErrMissingCredential, m.Name)
}
