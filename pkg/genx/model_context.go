package genx

import (
	"iter"
	"slices"
)

var _ ModelContext = (*modelContext)(nil)

// ModelContextBuilder assembles a ModelContext. Consecutive prompts with
// the same name are merged, as are consecutive messages from the same
// author.
type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message
	Params   *ModelParams
}

func (b *ModelContextBuilder) PromptText(name, text string) {
	if n := len(b.Prompts); n > 0 && b.Prompts[n-1].Name == name {
		p := b.Prompts[n-1]
		if p.Text != "" {
			p.Text += "\n"
		}
		p.Text += text
		return
	}
	b.Prompts = append(b.Prompts, &Prompt{Name: name, Text: text})
}

func (b *ModelContextBuilder) AddMessage(msg *Message) {
	if n := len(b.Messages); n > 0 {
		last := b.Messages[n-1]
		if last.Role == msg.Role && last.Name == msg.Name {
			last.Contents = append(last.Contents, msg.Contents...)
			return
		}
	}
	b.Messages = append(b.Messages, msg)
}

func (b *ModelContextBuilder) UserText(name, text string) {
	b.AddMessage(&Message{Role: RoleUser, Name: name, Contents: Contents{Text(text)}})
}

func (b *ModelContextBuilder) ModelText(name, text string) {
	b.AddMessage(&Message{Role: RoleModel, Name: name, Contents: Contents{Text(text)}})
}

func (b *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(b.Prompts),
		messages: slices.Clone(b.Messages),
		params:   b.Params,
	}
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	params   *ModelParams
}

func (m *modelContext) Prompts() iter.Seq[*Prompt]   { return slices.Values(m.prompts) }
func (m *modelContext) Messages() iter.Seq[*Message] { return slices.Values(m.messages) }
func (m *modelContext) Params() *ModelParams         { return m.params }
