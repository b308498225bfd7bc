package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Config tunes a Unit. Zero values take defaults.
type Config struct {
	// WindowSamples is the length of the analysis window kept for voice
	// activity detection. Default 1024.
	WindowSamples int
	// Preferred lists encoder MIME types in order of preference.
	// Default PreferredMIMETypes.
	Preferred []string
}

// Unit owns one microphone and hands out at most one Session at a time.
type Unit struct {
	mic Microphone
	cfg Config
	enc Encoder

	mu     sync.Mutex
	active *Session
}

// NewUnit returns a Unit recording from mic.
func NewUnit(mic Microphone, cfg Config) *Unit {
	if cfg.WindowSamples <= 0 {
		cfg.WindowSamples = 1024
	}
	if len(cfg.Preferred) == 0 {
		cfg.Preferred = PreferredMIMETypes
	}
	enc := ResolveEncoder(cfg.Preferred)
	slog.Debug("capture: encoder selected", "mime", enc.MIMEType())
	return &Unit{mic: mic, cfg: cfg, enc: enc}
}

// MIMEType returns the container recordings are encoded in.
func (u *Unit) MIMEType() string { return u.enc.MIMEType() }

// Active reports whether a session is open.
func (u *Unit) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active != nil
}

// Start opens the microphone and begins recording. It fails with ErrBusy
// while another session is open.
func (u *Unit) Start(ctx context.Context) (*Session, error) {
	u.mu.Lock()
	if u.active != nil {
		u.mu.Unlock()
		return nil, ErrBusy
	}
	s := &Session{unit: u}
	u.active = s
	u.mu.Unlock()

	stream, err := u.mic.Open(ctx)
	if err != nil {
		u.release(s)
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDevice) {
			return nil, fmt.Errorf("capture: open microphone: %w", err)
		}
		return nil, fmt.Errorf("%w: open microphone: %w", ErrDevice, err)
	}
	s.start(stream, u.cfg.WindowSamples, u.enc)
	slog.Debug("capture: session started", "format", stream.Format().String())
	return s, nil
}

func (u *Unit) release(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active == s {
		u.active = nil
	}
}
