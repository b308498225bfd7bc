package genx

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator streams content from the Gemini API.
type GeminiGenerator struct {
	Client *genai.Client `json:"-" yaml:"-"`

	// Model must not start with "models/". When empty, the model passed
	// to GenerateStream is used with any "provider/" prefix removed.
	Model string `json:"model" yaml:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitempty"`
}

func (g *GeminiGenerator) GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error) {
	cfg, contents, err := g.convModelContext(mctx)
	if err != nil {
		return nil, err
	}
	name := g.Model
	if name == "" {
		name = model
		if _, m, ok := strings.Cut(model, "/"); ok {
			name = m
		}
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := geminiPull(sb, g.Client.Models.GenerateContentStream(ctx, name, contents, cfg)); err != nil {
			var apiErr *apierror.APIError
			if errors.As(err, &apiErr) {
				err = apiErr.Unwrap()
			}
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func geminiPull(sb *StreamBuilder, seq iter.Seq2[*genai.GenerateContentResponse, error]) error {
	var selIdx int32
	picked := false
	for resp, err := range seq {
		if err != nil {
			return err
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		var sel *genai.Candidate
		if !picked {
			picked = true
			selIdx = resp.Candidates[0].Index
			sel = resp.Candidates[0]
		} else {
			for _, c := range resp.Candidates {
				if c.Index == selIdx {
					sel = c
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		if sel.Content != nil {
			var text strings.Builder
			for _, p := range sel.Content.Parts {
				if p.Text != "" && !p.Thought {
					text.WriteString(p.Text)
				}
			}
			if text.Len() > 0 {
				if err := sb.Add(&MessageChunk{Role: RoleModel, Part: Text(text.String())}); err != nil {
					return err
				}
			}
		}
		usage := geminiConvUsage(resp.UsageMetadata)
		switch sel.FinishReason {
		case genai.FinishReasonUnspecified, "":
		case genai.FinishReasonStop:
			return sb.Done(usage)
		case genai.FinishReasonMaxTokens:
			return sb.Truncated(usage)
		case genai.FinishReasonSafety:
			var cats []string
			for _, r := range sel.SafetyRatings {
				if r.Blocked {
					cats = append(cats, string(r.Category))
				}
			}
			return sb.Blocked(usage, "blocked by "+strings.Join(cats, ", "))
		default:
			return sb.Unexpected(usage, fmt.Errorf("unexpected finish reason: %s", sel.FinishReason))
		}
	}
	return errors.New("genx: unexpected end of stream: no finish reason")
}

func (g *GeminiGenerator) convModelContext(mctx ModelContext) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}
	var prompts []*genai.Part
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}
	mp := g.GenerateParams
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = genai.Ptr(mp.Temperature)
		}
		if mp.TopP > 0 {
			cfg.TopP = genai.Ptr(mp.TopP)
		}
		if mp.TopK > 0 {
			cfg.TopK = genai.Ptr(mp.TopK)
		}
		if mp.PresencePenalty > 0 {
			cfg.PresencePenalty = genai.Ptr(mp.PresencePenalty)
		}
		if mp.FrequencyPenalty > 0 {
			cfg.FrequencyPenalty = genai.Ptr(mp.FrequencyPenalty)
		}
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for msg := range mctx.Messages() {
		var role string
		switch msg.Role {
		case RoleUser:
			role = "user"
		case RoleModel:
			role = "model"
		default:
			return nil, nil, fmt.Errorf("genx: unexpected message role %q", msg.Role)
		}
		var parts []*genai.Part
		for _, c := range msg.Contents {
			switch v := c.(type) {
			case Text:
				parts = append(parts, genai.NewPartFromText(string(v)))
			case *Blob:
				parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
			}
		}
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, parts...)
			continue
		}
		last = &genai.Content{Role: role, Parts: parts}
		contents = append(contents, last)
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("genx: no contents")
	}
	return cfg, contents, nil
}

func geminiConvUsage(u *genai.GenerateContentResponseUsageMetadata) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:        int64(u.PromptTokenCount),
		CachedContentTokenCount: int64(u.CachedContentTokenCount),
		GeneratedTokenCount:     int64(u.CandidatesTokenCount),
	}
}
