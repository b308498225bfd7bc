package voicechat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voice/capture"
	"github.com/haivivi/socratchat/pkg/voice/stt"
	"github.com/haivivi/socratchat/pkg/voice/tts"
)

// StartRecording opens the microphone for a push-to-talk turn and stops
// any playback. It is a no-op while already recording.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.handsFree:
		s.mu.Unlock()
		return ErrHandsFree
	case s.recording:
		s.mu.Unlock()
		return nil
	case s.phase != ModeIdle:
		s.mu.Unlock()
		return ErrBusy
	}
	gen, ctx := s.gen, s.ctx
	s.mu.Unlock()

	s.player.Stop()
	return s.openManual(ctx, gen)
}

// StopRecording ends the push-to-talk turn and processes it in the
// background. Without voice-active the transcript comes back as an
// EventDraft; with it the transcript is sent and the reply spoken.
func (s *Session) StopRecording() error {
	s.lock()
	if s.closed {
		s.unlock()
		return ErrClosed
	}
	if s.handsFree {
		s.unlock()
		return ErrHandsFree
	}
	cs := s.active
	if !s.recording || cs == nil {
		s.unlock()
		return nil
	}
	s.active = nil
	s.recording = false
	s.phase = ModeProcessing
	gen, ctx := s.gen, s.ctx
	s.wg.Add(1)
	s.unlockAndPublish()

	go s.finishRecording(ctx, gen, cs)
	return nil
}

// ToggleVoiceChat switches voice-active mode and reports whether it is
// now on. Turning it on starts recording right away and turns spoken
// replies on.
func (s *Session) ToggleVoiceChat() (bool, error) {
	s.lock()
	if s.closed {
		s.unlock()
		return false, ErrClosed
	}
	if s.handsFree {
		s.unlock()
		return false, ErrHandsFree
	}
	old := s.teardownLocked()
	on := !s.voiceActive
	s.voiceActive = on
	if on {
		s.speakReplies = true
	}
	gen, ctx := s.gen, s.ctx
	s.unlockAndPublish()
	s.release(old)

	slog.Info("voicechat: voice-active toggled", "on", on)
	if !on {
		return false, nil
	}
	if err := s.openManual(ctx, gen); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) openManual(ctx context.Context, gen uint64) error {
	_, err := s.startCapture(ctx, gen, true, func() {
		s.recording = true
		s.phase = ModeListening
	})
	switch {
	case err == nil, errors.Is(err, errStale):
		return nil
	case errors.Is(err, capture.ErrBusy):
		return err
	}
	s.captureFailed(gen, nil, err)
	return err
}

func (s *Session) finishRecording(ctx context.Context, gen uint64, cs *capture.Session) {
	defer s.wg.Done()

	rec, err := cs.Stop(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, capture.ErrAborted) {
			s.captureFailed(gen, nil, err)
		}
		return
	}

	text, err := s.stt.Transcribe(ctx, rec)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, stt.ErrTooShort), err == nil && text == "":
		s.afterManualTurn(ctx, gen, Event{Kind: EventAdvisory, Text: AdvisoryNotUnderstood})
		return
	case err != nil:
		slog.Warn("voicechat: transcription failed", "error", err)
		s.afterManualTurn(ctx, gen, Event{Kind: EventAdvisory, Text: AdvisoryTranscription})
		return
	}

	s.lock()
	if gen != s.gen || s.closed {
		s.unlock()
		return
	}
	if !s.voiceActive {
		s.phase = ModeIdle
		s.unlockAndPublish(Event{Kind: EventDraft, Text: text, Duration: rec.Duration, Bytes: rec.Len()})
		return
	}
	s.unlock()
	s.voiceTurn(ctx, gen, text)
}

// voiceTurn sends a voice-active transcript, speaks the reply and opens
// the microphone again.
func (s *Session) voiceTurn(ctx context.Context, gen uint64, text string) {
	reply, err := s.chat.SendTurn(ctx, text)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, chat.ErrMissingCredential):
		s.update(gen, func() {
			s.voiceActive = false
			s.phase = ModeIdle
		}, Event{Kind: EventAdvisory, Text: AdvisoryMissingKey})
		return
	case err != nil:
		slog.Warn("voicechat: chat turn failed", "error", err)
	}

	if !s.update(gen, func() { s.phase = ModeSpeaking }) {
		return
	}
	if err := s.speak(ctx, reply); errors.Is(err, tts.ErrInterrupted) {
		slog.Debug("voicechat: reply interrupted")
	}
	s.afterManualTurn(ctx, gen)
}

// afterManualTurn returns to idle, or reopens the microphone while
// voice-active is still on.
func (s *Session) afterManualTurn(ctx context.Context, gen uint64, extra ...Event) {
	s.lock()
	if gen != s.gen || s.closed {
		s.unlock()
		return
	}
	s.phase = ModeIdle
	restart := s.voiceActive
	s.unlockAndPublish(extra...)
	if restart {
		s.openManual(ctx, gen)
	}
}
