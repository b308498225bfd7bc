// Package vad decides when a speaker has finished a turn.
//
// A Monitor consumes energy samples (0..255, the mean analyser bin
// level) and reports speech and end of turn. Silence before the first
// speech sample never ends a turn; after speech, the turn completes once
// the level has stayed at or below the threshold for SilenceDuration. Any
// louder sample during that window restarts the timer.
package vad

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/socratchat/pkg/audio/analyser"
)

// ErrSourceClosed is returned by Run when the sampler's source went away
// before the turn completed.
var ErrSourceClosed = errors.New("vad: source closed")

// Config holds the detection policy.
type Config struct {
	// Threshold is the energy a sample must exceed to count as speech.
	Threshold float64
	// SilenceDuration is how long quiet must last after speech.
	SilenceDuration time.Duration
	// Interval is the sampling period used by Run.
	Interval time.Duration
}

// DefaultConfig returns threshold 15, 1.5s of silence, sampled at 60Hz.
func DefaultConfig() Config {
	return Config{
		Threshold:       15,
		SilenceDuration: 1500 * time.Millisecond,
		Interval:        time.Second / 60,
	}
}

// Event is the outcome of one observation.
type Event int

const (
	// EventNone means nothing changed.
	EventNone Event = iota
	// EventSpeechStart is the first speech sample of the turn.
	EventSpeechStart
	// EventSpeech is a further speech sample.
	EventSpeech
	// EventTurnComplete means the speaker stopped. It is reported once.
	EventTurnComplete
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSpeechStart:
		return "speech_start"
	case EventSpeech:
		return "speech"
	case EventTurnComplete:
		return "turn_complete"
	default:
		return "unknown"
	}
}

// Monitor applies the silence policy. It is safe for concurrent use.
type Monitor struct {
	cfg Config

	mu           sync.Mutex
	hasSpoken    bool
	silenceStart time.Time
	complete     bool
}

// New returns a Monitor. Zero fields take their defaults.
func New(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = def.SilenceDuration
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Monitor{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// HasSpoken reports whether speech was seen in this turn.
func (m *Monitor) HasSpoken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasSpoken
}

// Reset starts a new turn.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasSpoken = false
	m.silenceStart = time.Time{}
	m.complete = false
}

// Observe records one energy sample taken at now.
func (m *Monitor) Observe(now time.Time, energy float64) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.complete {
		return EventNone
	}
	if energy > m.cfg.Threshold {
		first := !m.hasSpoken
		m.hasSpoken = true
		m.silenceStart = time.Time{}
		if first {
			return EventSpeechStart
		}
		return EventSpeech
	}
	if !m.hasSpoken {
		return EventNone
	}
	if m.silenceStart.IsZero() {
		m.silenceStart = now
	}
	if now.Sub(m.silenceStart) >= m.cfg.SilenceDuration {
		m.complete = true
		return EventTurnComplete
	}
	return EventNone
}

// Sampler yields energy samples. ok is false once the source is gone.
type Sampler interface {
	Sample() (energy float64, ok bool)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (float64, bool)

func (f SamplerFunc) Sample() (float64, bool) { return f() }

// Run samples s every Interval and reports non-empty events to onEvent
// until the turn completes (nil), ctx is done (ctx.Err()), or the sampler
// closes (ErrSourceClosed). onEvent may be nil.
func (m *Monitor) Run(ctx context.Context, s Sampler, onEvent func(Event)) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			energy, ok := s.Sample()
			if !ok {
				return ErrSourceClosed
			}
			ev := m.Observe(now, energy)
			if ev == EventNone {
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}
			if ev == EventTurnComplete {
				slog.Debug("vad: turn complete")
				return nil
			}
		}
	}
}

// Window is a live sample source such as a capture session.
type Window interface {
	Window(dst []float64) int
	Done() <-chan struct{}
}

// WindowSampler measures the newest window of w with a.
func WindowSampler(w Window, a *analyser.Analyser) Sampler {
	buf := make([]float64, a.FFTSize())
	return SamplerFunc(func() (float64, bool) {
		select {
		case <-w.Done():
			return 0, false
		default:
		}
		clear(buf)
		w.Window(buf)
		return a.Energy(buf), true
	})
}
