package voicechat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/haivivi/socratchat/pkg/audio/analyser"
	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voice/capture"
	"github.com/haivivi/socratchat/pkg/voice/stt"
	"github.com/haivivi/socratchat/pkg/voice/tts"
	"github.com/haivivi/socratchat/pkg/voice/vad"
)

// errRestart means the turn ended without speech worth answering.
var errRestart = errors.New("voicechat: restart listening")

// EnterHandsFree starts the automatic listen, answer and speak loop. Any
// manual recording or voice-active mode is ended first.
func (s *Session) EnterHandsFree() error {
	s.lock()
	if s.closed {
		s.unlock()
		return ErrClosed
	}
	if s.handsFree {
		s.unlock()
		return nil
	}
	old := s.teardownLocked()
	s.handsFree = true
	s.voiceActive = false
	s.phase = ModeListening
	gen, ctx := s.gen, s.ctx
	s.wg.Add(1)
	s.unlockAndPublish()
	s.release(old)

	slog.Info("voicechat: hands-free started")
	go s.runHandsFree(ctx, gen)
	return nil
}

// ExitHandsFree stops the loop at once. Capture in progress is discarded
// and results still in flight are dropped.
func (s *Session) ExitHandsFree() error {
	s.lock()
	if s.closed {
		s.unlock()
		return ErrClosed
	}
	if !s.handsFree {
		s.unlock()
		return nil
	}
	old := s.teardownLocked()
	s.handsFree = false
	s.unlockAndPublish()
	s.release(old)
	slog.Info("voicechat: hands-free stopped")
	return nil
}

func (s *Session) runHandsFree(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	if sleepCtx(ctx, s.set.StartDelay) != nil {
		return
	}

	bo := s.set.backoff()
	failures := 0
	for s.live(gen) {
		err := s.handsFreeTurn(ctx, gen)
		switch {
		case err == nil:
			failures = 0
			bo = s.set.backoff()
			continue
		case errors.Is(err, errRestart):
			continue
		case ctx.Err() != nil || errors.Is(err, errStale):
			return
		case errors.Is(err, capture.ErrPermissionDenied):
			s.abandon(gen, AdvisoryPermissionDenied)
			return
		case errors.Is(err, chat.ErrMissingCredential):
			s.abandon(gen, AdvisoryMissingKey)
			return
		}

		failures++
		slog.Warn("voicechat: hands-free turn failed", "failures", failures, "error", err)
		notice, final := failureAdvisories(err)
		if failures >= s.set.MaxConsecutiveFailures {
			s.abandon(gen, final)
			return
		}
		var extra []Event
		if notice != "" {
			extra = append(extra, Event{Kind: EventAdvisory, Text: notice})
		}
		if !s.update(gen, func() { s.phase = ModeListening; s.hint = "" }, extra...) {
			return
		}
		if sleepCtx(ctx, bo.Pause()) != nil {
			return
		}
	}
}

// handsFreeTurn runs one listen, transcribe, answer and speak cycle.
func (s *Session) handsFreeTurn(ctx context.Context, gen uint64) error {
	cs, err := s.startCapture(ctx, gen, false, func() {
		s.phase = ModeListening
		s.hint = ""
	})
	if err != nil {
		return err
	}

	mon := vad.New(s.set.VAD)
	sampler := vad.WindowSampler(cs, analyser.New(s.set.Analyser))
	err = mon.Run(ctx, sampler, func(ev vad.Event) {
		if ev == vad.EventSpeechStart {
			s.update(gen, func() { s.hint = HintSpeak })
		}
	})
	if err != nil {
		cs.Abort()
		if errors.Is(err, vad.ErrSourceClosed) {
			if derr := cs.Err(); derr != nil {
				return derr
			}
			return errRestart
		}
		return err
	}

	rec, err := cs.Stop(ctx)
	if err != nil {
		return err
	}
	if !s.update(gen, func() {
		s.active = nil
		s.phase = ModeProcessing
		s.hint = HintTranscribing
	}) {
		return errStale
	}

	text, err := s.stt.Transcribe(ctx, rec)
	switch {
	case errors.Is(err, stt.ErrTooShort):
		return errRestart
	case err != nil:
		return err
	case text == "":
		slog.Debug("voicechat: empty transcript")
		return errRestart
	}
	if !s.update(gen, func() { s.hint = "" }) {
		return errStale
	}

	reply, err := s.chat.SendTurn(ctx, text)
	if err != nil {
		return err
	}
	if !s.update(gen, func() { s.phase = ModeSpeaking }) {
		return errStale
	}
	if err := s.speak(ctx, reply); err != nil && !errors.Is(err, tts.ErrInterrupted) {
		return err
	}
	return nil
}

// failureAdvisories returns the notice for a retried hands-free failure
// and the one shown when the failure cap ends the loop. Chat and
// playback failures have no notice of their own.
func failureAdvisories(err error) (notice, final string) {
	switch {
	case errors.Is(err, capture.ErrDevice), errors.Is(err, capture.ErrBusy):
		return AdvisoryDevice, AdvisoryDeviceRetry
	case errors.Is(err, stt.ErrTranscription):
		return AdvisoryTranscription, AdvisoryTranscription
	default:
		return "", AdvisoryHandsFreeStopped
	}
}

// abandon leaves hands-free with an advisory if gen is still current.
func (s *Session) abandon(gen uint64, advisory string) {
	s.lock()
	if gen != s.gen || s.closed {
		s.unlock()
		return
	}
	old := s.teardownLocked()
	s.handsFree = false
	s.unlockAndPublish(Event{Kind: EventAdvisory, Text: advisory})
	s.release(old)
	slog.Info("voicechat: hands-free abandoned", "advisory", advisory)
}
