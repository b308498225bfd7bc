package voicechat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voice/capture"
	"github.com/haivivi/socratchat/pkg/voice/stt"
)

// errStale marks work that finished after its generation ended.
var errStale = errors.New("voicechat: stale generation")

// Speaker speaks replies. Stop cuts the current utterance short.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Config wires a Session to its collaborators.
type Config struct {
	Capture *capture.Unit
	STT     *stt.Bridge
	Chat    *chat.Controller
	Player  Speaker

	// OnEvent receives state changes, advisories and drafts in order. It
	// runs on the goroutine that caused the change. It may call State but
	// no other Session method.
	OnEvent func(Event)

	Settings Settings
}

// Session is the voice conversation state machine. It is safe for
// concurrent use.
type Session struct {
	capture *capture.Unit
	stt     *stt.Bridge
	chat    *chat.Controller
	player  Speaker
	onEvent func(Event)
	set     Settings

	mu           sync.Mutex
	closed       bool
	handsFree    bool
	voiceActive  bool
	speakReplies bool
	recording    bool
	phase        Mode
	hint         string
	active       *capture.Session
	gen          uint64
	ctx          context.Context
	cancel       context.CancelFunc

	// emitMu keeps events in the order their changes were made. It is
	// always taken before mu.
	emitMu sync.Mutex
	wg     sync.WaitGroup
}

// New returns an idle Session.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Capture == nil:
		return nil, errors.New("voicechat: capture unit is required")
	case cfg.STT == nil:
		return nil, errors.New("voicechat: transcription bridge is required")
	case cfg.Chat == nil:
		return nil, errors.New("voicechat: chat controller is required")
	case cfg.Player == nil:
		return nil, errors.New("voicechat: player is required")
	}
	s := &Session{
		capture: cfg.Capture,
		stt:     cfg.STT,
		chat:    cfg.Chat,
		player:  cfg.Player,
		onEvent: cfg.OnEvent,
		set:     cfg.Settings.withDefaults(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// State returns the current snapshot.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetSpeakReplies turns spoken replies to typed messages on or off and
// stops whatever is playing.
func (s *Session) SetSpeakReplies(on bool) error {
	s.lock()
	if s.closed {
		s.unlock()
		return ErrClosed
	}
	s.speakReplies = on
	s.unlockAndPublish()
	s.player.Stop()
	return nil
}

// SendText sends a typed chat turn and returns the reply. The reply is
// spoken before SendText returns when spoken replies are on and no
// recording is open. Leaving the current mode cancels the turn.
func (s *Session) SendText(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.handsFree {
		s.mu.Unlock()
		return "", ErrHandsFree
	}
	gen, flow := s.gen, s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(flow, cancel)()

	reply, err := s.chat.SendTurn(ctx, text)
	if err != nil {
		if errors.Is(err, chat.ErrMissingCredential) {
			s.notice(gen, AdvisoryMissingKey)
		}
		return reply, err
	}

	s.mu.Lock()
	speak := gen == s.gen && !s.closed && s.speakReplies && !s.recording
	s.mu.Unlock()
	if speak {
		s.speak(ctx, reply)
	}
	return reply, nil
}

// Close leaves any mode, releases the microphone, stops playback and
// waits for background work to finish.
func (s *Session) Close() error {
	s.lock()
	if s.closed {
		s.unlock()
		return nil
	}
	old := s.teardownLocked()
	s.handsFree = false
	s.voiceActive = false
	s.closed = true
	s.cancel()
	s.unlockAndPublish()
	s.release(old)
	s.wg.Wait()
	slog.Debug("voicechat: session closed")
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		HandsFree:    s.handsFree,
		VoiceActive:  s.voiceActive,
		SpeakReplies: s.speakReplies,
		Recording:    s.recording,
		Agent:        agentFor(s.phase),
		Hint:         s.hint,
	}
	if s.handsFree {
		snap.Mode = s.phase
	}
	return snap
}

// lock takes emitMu then mu. Every path that may publish starts here so
// a handler calling State never waits on a publisher holding mu.
func (s *Session) lock() {
	s.emitMu.Lock()
	s.mu.Lock()
}

func (s *Session) unlock() {
	s.mu.Unlock()
	s.emitMu.Unlock()
}

// unlockAndPublish releases s.mu and delivers the current state followed
// by extra, then releases emitMu. Both must be held via lock.
func (s *Session) unlockAndPublish(extra ...Event) {
	snap := s.snapshotLocked()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	if s.onEvent == nil {
		return
	}
	s.onEvent(Event{Kind: EventState, State: snap})
	for _, ev := range extra {
		ev.State = snap
		s.onEvent(ev)
	}
}

// update applies fn and publishes if gen is still current.
func (s *Session) update(gen uint64, fn func(), extra ...Event) bool {
	s.lock()
	if gen != s.gen || s.closed {
		s.unlock()
		return false
	}
	fn()
	s.unlockAndPublish(extra...)
	return true
}

func (s *Session) notice(gen uint64, text string) {
	s.update(gen, func() {}, Event{Kind: EventAdvisory, Text: text})
}

func (s *Session) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

// teardownLocked ends the current generation and returns the capture
// session the caller must release once s.mu is unlocked.
func (s *Session) teardownLocked() *capture.Session {
	s.gen++
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	old := s.active
	s.active = nil
	s.recording = false
	s.phase = ModeIdle
	s.hint = ""
	return old
}

func (s *Session) release(old *capture.Session) {
	if old != nil {
		old.Abort()
	}
	s.player.Stop()
}

// startCapture opens a capture session owned by gen and applies fn with
// it registered. With watch set, a device failure while the session is
// still owned is reported as a manual capture failure.
func (s *Session) startCapture(ctx context.Context, gen uint64, watch bool, fn func()) (*capture.Session, error) {
	cs, err := s.capture.Start(ctx)
	if err != nil {
		return nil, err
	}
	s.lock()
	if gen != s.gen || s.closed {
		s.unlock()
		cs.Abort()
		return nil, errStale
	}
	s.active = cs
	fn()
	if watch {
		s.wg.Add(1)
		go s.watchCapture(gen, cs)
	}
	s.unlockAndPublish()
	return cs, nil
}

func (s *Session) watchCapture(gen uint64, cs *capture.Session) {
	defer s.wg.Done()
	<-cs.Done()
	if err := cs.Err(); err != nil {
		s.captureFailed(gen, cs, err)
	}
}

// captureFailed leaves manual voice mode after a microphone failure. With
// cs set it only acts while cs is still the open session.
func (s *Session) captureFailed(gen uint64, cs *capture.Session, err error) {
	text := AdvisoryDevice
	if errors.Is(err, capture.ErrPermissionDenied) {
		text = AdvisoryPermissionDenied
	}
	s.lock()
	if gen != s.gen || s.closed || (cs != nil && s.active != cs) {
		s.unlock()
		return
	}
	old := s.active
	s.active = nil
	s.recording = false
	s.voiceActive = false
	s.phase = ModeIdle
	s.hint = ""
	s.unlockAndPublish(Event{Kind: EventAdvisory, Text: text})
	if old != nil {
		old.Abort()
	}
	slog.Warn("voicechat: microphone failed", "error", err)
}

func (s *Session) speak(ctx context.Context, text string) error {
	err := s.player.Speak(ctx, text)
	if err != nil && ctx.Err() == nil {
		slog.Warn("voicechat: playback failed", "error", err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
