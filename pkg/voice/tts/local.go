package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Synthesizer is an on-device speech engine.
type Synthesizer interface {
	Available() bool
	Speak(ctx context.Context, text string, loc Locale) error
}

// localCommands are probed in order by NewLocalSynthesizer.
var localCommands = []string{"say", "espeak-ng", "espeak"}

// LocalSynthesizer speaks with the platform speech command. Cancelling the
// context kills the process.
type LocalSynthesizer struct {
	// Command is the resolved executable path; empty means unavailable.
	Command string
	// Rate and Pitch are relative to the engine defaults (1 is normal).
	Rate  float64
	Pitch float64

	name string
}

var _ Synthesizer = (*LocalSynthesizer)(nil)

// NewLocalSynthesizer finds the first installed speech command.
func NewLocalSynthesizer() *LocalSynthesizer {
	l := &LocalSynthesizer{Rate: 1, Pitch: 1}
	for _, name := range localCommands {
		if path, err := exec.LookPath(name); err == nil {
			l.Command = path
			l.name = name
			break
		}
	}
	return l
}

func (l *LocalSynthesizer) Available() bool { return l != nil && l.Command != "" }

func (l *LocalSynthesizer) Speak(ctx context.Context, text string, loc Locale) error {
	if !l.Available() {
		return fmt.Errorf("tts: no local speech command")
	}
	cmd := exec.CommandContext(ctx, l.Command, l.args(text, loc)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("tts: %s: %w: %s", l.name, err, out)
	}
	return nil
}

func (l *LocalSynthesizer) args(text string, loc Locale) []string {
	rate := l.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := l.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	wpm := strconv.Itoa(int(175 * rate))
	if l.name == "say" {
		return []string{"-r", wpm, "--", text}
	}
	voice := "en-us"
	if loc.Language == French.Language {
		voice = "fr"
	}
	return []string{"-v", voice, "-s", wpm, "-p", strconv.Itoa(min(99, int(50*pitch))), "--", text}
}
