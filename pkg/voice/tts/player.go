package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haivivi/socratchat/pkg/fallback"
)

// ClipPlayer plays a synthesized clip to completion.
type ClipPlayer interface {
	PlayClip(ctx context.Context, clip *Clip) error
}

// Player speaks text through the cloud cascade, then the local engine.
// At most one utterance is in flight.
type Player struct {
	// Voice is the cloud voice. Nil skips the cloud cascade.
	Voice CloudVoice
	// Output plays cloud clips. Required when Voice is set.
	Output ClipPlayer
	// Local is the on-device fallback. Nil or unavailable means give up
	// quietly.
	Local Synthesizer

	mu  sync.Mutex
	cur *utterance
}

type utterance struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Speaking reports whether an utterance is in flight.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Speak interrupts any current utterance, waits for it to wind down and
// then speaks text. It returns nil once the text was spoken (or when no
// engine is available), ErrInterrupted when cut short by Stop or a newer
// Speak, ctx's error when ctx ends, and an ErrPlayback error otherwise.
func (p *Player) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uctx, cancel := context.WithCancelCause(ctx)
	u := &utterance{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.cur
	p.cur = u
	p.mu.Unlock()
	if prev != nil {
		prev.cancel(ErrInterrupted)
		<-prev.done
	}

	defer func() {
		cancel(nil)
		p.mu.Lock()
		if p.cur == u {
			p.cur = nil
		}
		p.mu.Unlock()
		close(u.done)
	}()

	err := p.speak(uctx, text)
	if cause := context.Cause(uctx); errors.Is(cause, ErrInterrupted) {
		return ErrInterrupted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Stop interrupts the current utterance and waits for it to end.
func (p *Player) Stop() {
	p.mu.Lock()
	u := p.cur
	p.mu.Unlock()
	if u == nil {
		return
	}
	u.cancel(ErrInterrupted)
	<-u.done
}

func (p *Player) speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	loc := DetectLocale(text)

	if p.Voice != nil && p.Output != nil {
		cascade := Cascade(loc)
		strategies := make([]fallback.Strategy[struct{}], 0, len(cascade))
		for _, opts := range cascade {
			strategies = append(strategies, fallback.Strategy[struct{}]{
				Name: fmt.Sprintf("%s/%s/%s", opts.Provider, opts.Voice, opts.Language),
				Run: func(ctx context.Context) (struct{}, error) {
					clip, err := p.Voice.Synthesize(ctx, text, opts)
					if err != nil {
						return struct{}{}, err
					}
					return struct{}{}, p.Output.PlayClip(ctx, clip)
				},
			})
		}
		_, idx, err := fallback.First(ctx, strategies...)
		if err == nil {
			slog.Debug("tts: spoke with cloud voice", "strategy", idx, "language", loc.Language)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("tts: cloud voices failed, falling back to local", "error", err)
	}

	if p.Local == nil || !p.Local.Available() {
		slog.Debug("tts: no local speech engine")
		return nil
	}
	if err := p.Local.Speak(ctx, text, loc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	return nil
}
