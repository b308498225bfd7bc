package genx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          = "stop"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonContentFilter = "content_filter"
)

// OpenAIGenerator streams chat completions from any OpenAI compatible
// endpoint.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-" yaml:"-"`

	// Model is sent to the API. When empty, the model passed to
	// GenerateStream is used with any "provider/" prefix removed.
	Model string `json:"model" yaml:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitempty"`

	// UseSystemRole sends prompts as "system" messages instead of
	// "developer" ones. Most non-OpenAI endpoints need it.
	UseSystemRole bool `json:"use_system_role,omitzero" yaml:"use_system_role,omitempty"`

	// UseMaxTokens sends the legacy max_tokens field instead of
	// max_completion_tokens.
	UseMaxTokens bool `json:"use_max_tokens,omitzero" yaml:"use_max_tokens,omitempty"`
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error) {
	params, err := g.chatCompletion(model, mctx)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := oaiPull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAIGenerator) modelName(model string) string {
	if g.Model != "" {
		return g.Model
	}
	if _, name, ok := strings.Cut(model, "/"); ok {
		return name
	}
	return model
}

func (g *OpenAIGenerator) chatCompletion(model string, mctx ModelContext) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.modelName(model),
	}
	mp := g.GenerateParams
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.FrequencyPenalty > 0 {
			params.FrequencyPenalty = param.NewOpt(float64(mp.FrequencyPenalty))
		}
		if mp.MaxTokens > 0 {
			if g.UseMaxTokens {
				params.MaxTokens = param.NewOpt(int64(mp.MaxTokens))
			} else {
				params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
			}
		}
		if mp.N > 0 {
			params.N = param.NewOpt(int64(mp.N))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
		if mp.PresencePenalty > 0 {
			params.PresencePenalty = param.NewOpt(float64(mp.PresencePenalty))
		}
	}
	return params, nil
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()
	var index int64
	picked := false
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		var sel *openai.ChatCompletionChunkChoice
		if !picked {
			picked = true
			index = chunk.Choices[0].Index
			sel = &chunk.Choices[0]
		} else {
			for i := range chunk.Choices {
				if chunk.Choices[i].Index == index {
					sel = &chunk.Choices[i]
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		if s := sel.Delta.Content; s != "" {
			if err := sb.Add(&MessageChunk{Role: RoleModel, Part: Text(s)}); err != nil {
				return err
			}
		}
		switch sel.FinishReason {
		case oaiFinishReasonStop:
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonLength:
			return sb.Truncated(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonContentFilter:
			return sb.Blocked(oaiConvUsage(&chunk.Usage), sel.Delta.Refusal)
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(oaiConvUsage(&chunk.Usage), s)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	// some compatible servers close the stream without a finish reason
	return sb.Done(Usage{})
}

func (g *OpenAIGenerator) convModelContext(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for p := range mctx.Prompts() {
		out = append(out, g.convPrompt(p))
	}
	for msg := range mctx.Messages() {
		text := msg.Text()
		if text == "" {
			return nil, fmt.Errorf("genx: %s message must contain text", msg.Role)
		}
		switch msg.Role {
		case RoleUser:
			mp := openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: param.NewOpt(text)},
			}
			if msg.Name != "" {
				mp.Name = param.NewOpt(msg.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfUser: &mp})
		case RoleModel:
			mp := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(text)},
			}
			if msg.Name != "" {
				mp.Name = param.NewOpt(msg.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &mp})
		default:
			return nil, fmt.Errorf("genx: unexpected message role %q", msg.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("genx: empty model context")
	}
	return out, nil
}

func (g *OpenAIGenerator) convPrompt(p *Prompt) openai.ChatCompletionMessageParamUnion {
	if g.UseSystemRole {
		mp := openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: param.NewOpt(p.Text)},
		}
		if p.Name != "" {
			mp.Name = param.NewOpt(p.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfSystem: &mp}
	}
	mp := openai.ChatCompletionDeveloperMessageParam{
		Content: openai.ChatCompletionDeveloperMessageParamContentUnion{OfString: param.NewOpt(p.Text)},
	}
	if p.Name != "" {
		mp.Name = param.NewOpt(p.Name)
	}
	return openai.ChatCompletionMessageParamUnion{OfDeveloper: &mp}
}

func oaiConvUsage(u *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:    u.PromptTokens,
		GeneratedTokenCount: u.CompletionTokens,
	}
}
