package genx

import (
	"slices"
	"strings"
)

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

var (
	_ Part = Text("")
	_ Part = (*Blob)(nil)
)

// Role identifies the author of a message.
type Role string

func (r Role) String() string { return string(r) }

// Message is one turn of a conversation.
type Message struct {
	Role     Role
	Name     string
	Contents Contents
}

// Text concatenates the text parts of m.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Contents {
		if t, ok := p.(Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// MessageChunk is an incremental piece of a model reply.
type MessageChunk struct {
	Role Role
	Name string
	Part Part
}

func (c *MessageChunk) Clone() *MessageChunk {
	out := *c
	if c.Part != nil {
		out.Part = c.Part.clone()
	}
	return &out
}

// Contents is an ordered list of parts.
type Contents []Part

// Part is Text or *Blob.
type Part interface {
	isPart()
	clone() Part
}

type Text string

func (Text) isPart()       {}
func (t Text) clone() Part { return t }

// Blob is inline binary content such as audio.
type Blob struct {
	MIMEType string
	Data     []byte
}

func (*Blob) isPart() {}

func (b *Blob) clone() Part {
	return &Blob{MIMEType: b.MIMEType, Data: slices.Clone(b.Data)}
}
