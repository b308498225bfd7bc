// Package voicechat coordinates capture, transcription, chat and speech
// into voice conversations.
//
// A Session supports three ways of talking:
//
//   - hands-free: listening, processing and speaking cycle on their own,
//     with end of turn detected from silence, until ExitHandsFree;
//   - push-to-talk: StartRecording and StopRecording bound one utterance,
//     whose transcript is offered back as a draft;
//   - voice-active: like push-to-talk, but each transcript is sent, the
//     reply spoken and recording restarted while the mode is on.
//
// Every asynchronous step carries the generation it was started in.
// Exiting a mode bumps the generation, so results that arrive late are
// dropped instead of resuming a loop that no longer exists.
package voicechat

import (
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/haivivi/socratchat/pkg/audio/analyser"
	"github.com/haivivi/socratchat/pkg/voice/vad"
)

var (
	// ErrHandsFree is returned by manual operations while hands-free is on.
	ErrHandsFree = errors.New("voicechat: hands-free session active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voicechat: session closed")
	// ErrBusy is returned while a turn is being processed.
	ErrBusy = errors.New("voicechat: turn in progress")
)

// User-facing advisories.
const (
	AdvisoryPermissionDenied = "🎤 Permission microphone refusée. Autorisez l'accès au micro."
	AdvisoryDevice           = "Impossible d'accéder au microphone."
	AdvisoryDeviceRetry      = "Erreur microphone. Cliquez pour réessayer."
	AdvisoryTranscription    = "Erreur de transcription. Réessayez."
	AdvisoryNotUnderstood    = "Je n'ai pas compris. Réessayez."
	AdvisoryMissingKey       = "⚠️ Clé API manquante. Ajoutez GROQ_API_KEY dans .env.local"
	AdvisoryHandsFreeStopped = "Mode mains libres arrêté après plusieurs erreurs. Réessayez."
)

// Hands-free transcript hints.
const (
	HintSpeak        = "🎤 Parlez..."
	HintTranscribing = "Transcription..."
)

// Mode is the hands-free loop state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
	ModeProcessing
	ModeSpeaking
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeListening:
		return "listening"
	case ModeProcessing:
		return "processing"
	case ModeSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// AgentState is what the assistant appears to be doing.
type AgentState int

const (
	AgentNone AgentState = iota
	AgentListening
	AgentThinking
	AgentTalking
)

func (a AgentState) String() string {
	switch a {
	case AgentNone:
		return ""
	case AgentListening:
		return "listening"
	case AgentThinking:
		return "thinking"
	case AgentTalking:
		return "talking"
	default:
		return "unknown"
	}
}

func (a AgentState) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func agentFor(phase Mode) AgentState {
	switch phase {
	case ModeListening:
		return AgentListening
	case ModeProcessing:
		return AgentThinking
	case ModeSpeaking:
		return AgentTalking
	default:
		return AgentNone
	}
}

// Snapshot is the observable session state.
type Snapshot struct {
	HandsFree    bool       `json:"hands_free" yaml:"hands_free"`
	VoiceActive  bool       `json:"voice_active" yaml:"voice_active"`
	SpeakReplies bool       `json:"speak_replies" yaml:"speak_replies"`
	Recording    bool       `json:"recording" yaml:"recording"`
	Mode         Mode       `json:"mode" yaml:"mode"`
	Agent        AgentState `json:"agent" yaml:"agent"`
	Hint         string     `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// EventKind tells events apart.
type EventKind int

const (
	// EventState carries a new Snapshot.
	EventState EventKind = iota
	// EventAdvisory carries a user-facing notice in Text.
	EventAdvisory
	// EventDraft carries a push-to-talk transcript in Text.
	EventDraft
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventAdvisory:
		return "advisory"
	case EventDraft:
		return "draft"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is delivered to Config.OnEvent.
type Event struct {
	Kind  EventKind `json:"kind"`
	State Snapshot  `json:"state"`
	Text  string    `json:"text,omitempty"`

	// Duration and Bytes describe the recording behind an EventDraft.
	Duration time.Duration `json:"duration,omitempty"`
	Bytes    int           `json:"bytes,omitempty"`
}

// Settings tunes timing and detection. Zero values take defaults.
type Settings struct {
	// StartDelay is the pause before hands-free listening starts.
	// Default 100ms.
	StartDelay time.Duration
	// MaxConsecutiveFailures ends hands-free after this many failed
	// turns in a row. Default 5.
	MaxConsecutiveFailures int
	// Backoff spaces out hands-free retries. Default 500ms to 8s, x2.
	Backoff gax.Backoff
	VAD      vad.Config
	Analyser analyser.Config
}

func (s Settings) withDefaults() Settings {
	if s.StartDelay <= 0 {
		s.StartDelay = 100 * time.Millisecond
	}
	if s.MaxConsecutiveFailures <= 0 {
		s.MaxConsecutiveFailures = 5
	}
	if s.Backoff.Initial <= 0 {
		s.Backoff = gax.Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2}
	}
	if s.Analyser.FFTSize <= 0 {
		s.Analyser = analyser.DefaultConfig()
	}
	return s
}

// backoff returns a fresh copy of the retry schedule.
func (s Settings) backoff() gax.Backoff {
	return gax.Backoff{Initial: s.Backoff.Initial, Max: s.Backoff.Max, Multiplier: s.Backoff.Multiplier}
}
