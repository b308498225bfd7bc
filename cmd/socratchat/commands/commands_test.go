package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/socratchat/cmd/socratchat/internal/config"
	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"gsk-abc", "gsk-abc"},
		{"true", true},
		{"1200", uint64(1200)},
		{"0.5", 0.5},
		{"[1, 2]", "[1, 2]"},
		{"", ""},
	}
	for _, tt := range tests {
		got := parseValue(tt.in)
		switch want := tt.want.(type) {
		case uint64:
			// goccy/go-yaml may decode small integers as int or uint64.
			switch g := got.(type) {
			case uint64:
				if g != want {
					t.Errorf("parseValue(%q) = %v", tt.in, got)
				}
			case int:
				if uint64(g) != want {
					t.Errorf("parseValue(%q) = %v", tt.in, got)
				}
			case int64:
				if uint64(g) != want {
					t.Errorf("parseValue(%q) = %v", tt.in, got)
				}
			default:
				t.Errorf("parseValue(%q) = %T %v", tt.in, got, got)
			}
		default:
			if got != tt.want {
				t.Errorf("parseValue(%q) = %T %v, want %v", tt.in, got, got, tt.want)
			}
		}
	}
}

func TestValidateServiceName(t *testing.T) {
	if err := validateServiceName("groq"); err != nil {
		t.Fatalf("groq: %v", err)
	}
	for _, bad := range []string{"", "minimax", "../groq"} {
		if err := validateServiceName(bad); err == nil {
			t.Errorf("validateServiceName(%q) = nil", bad)
		}
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)

	st := voicechat.Snapshot{HandsFree: true, Mode: voicechat.ModeListening, Agent: voicechat.AgentListening}
	p.event(voicechat.Event{Kind: voicechat.EventState, State: st})
	p.event(voicechat.Event{Kind: voicechat.EventState, State: st})
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("repeated state printed %d times", n)
	}

	p.message(chat.Message{Role: chat.RoleUser, Content: "Bonjour"})
	if strings.Contains(buf.String(), "Bonjour") {
		t.Fatal("user message echoed")
	}
	p.message(chat.Message{Role: chat.RoleAssistant, Content: "Salut", IsStreaming: true})
	if strings.Contains(buf.String(), "Salut") {
		t.Fatal("streaming message printed")
	}
	p.message(chat.Message{Role: chat.RoleAssistant, Content: "Salut"})
	if !strings.Contains(buf.String(), "Salut") {
		t.Fatal("final message not printed")
	}

	p.event(voicechat.Event{Kind: voicechat.EventDraft, Text: "Qu'est-ce que le courage ?", Duration: 2400 * time.Millisecond, Bytes: 38444})
	if !strings.Contains(buf.String(), "2.4s, 37.5 KiB") {
		t.Fatalf("draft line without recording info: %q", buf.String())
	}
	if d := p.takeDraft(); d != "Qu'est-ce que le courage ?" {
		t.Fatalf("draft = %q", d)
	}
	if d := p.takeDraft(); d != "" {
		t.Fatalf("draft not consumed: %q", d)
	}

	p.event(voicechat.Event{Kind: voicechat.EventAdvisory, Text: voicechat.AdvisoryNotUnderstood})
	if !strings.Contains(buf.String(), voicechat.AdvisoryNotUnderstood) {
		t.Fatal("advisory not printed")
	}
}

func TestReadLines(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got []string
	for line := range readLines(ctx, strings.NewReader("  a \nb\n\n")) {
		got = append(got, line)
	}
	if strings.Join(got, "|") != "a|b|" {
		t.Fatalf("lines = %q", got)
	}
}

func TestNewStreamerMissingCredential(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"", "groq", "gemini"} {
		svc := &config.Services{Voice: config.Voice{ChatBackend: backend}}
		s, err := newStreamer(ctx, svc)
		if err != nil {
			t.Fatalf("%q: %v", backend, err)
		}
		err = s.StreamChatCompletion(ctx, "Bonjour", func(string) {})
		if !errors.Is(err, chat.ErrMissingCredential) {
			t.Fatalf("%q: err = %v, want ErrMissingCredential", backend, err)
		}
	}
}

func TestNewStreamerBackends(t *testing.T) {
	ctx := context.Background()
	svc := &config.Services{Groq: config.Groq{APIKey: "gsk-test", BaseURL: config.DefaultGroqBaseURL}}
	s, err := newStreamer(ctx, svc)
	if err != nil {
		t.Fatal(err)
	}
	gs, ok := s.(*chat.GeneratorStreamer)
	if !ok {
		t.Fatalf("streamer = %T", s)
	}
	if gs.Model != "groq/"+chat.DefaultModel {
		t.Fatalf("model = %q", gs.Model)
	}

	svc.Voice.ChatBackend = "mistral"
	if _, err := newStreamer(ctx, svc); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
