package voicechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voice/capture"
	"github.com/haivivi/socratchat/pkg/voice/stt"
	"github.com/haivivi/socratchat/pkg/voice/vad"
)

// fakeStream yields noise for speechFrames reads, then silence.
type fakeStream struct {
	mu           sync.Mutex
	rng          *rand.Rand
	speechFrames int
	closed       bool
}

func (s *fakeStream) Format() pcm.Format { return pcm.L16Mono16K }

func (s *fakeStream) Read(p []byte) (int, error) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("read on closed stream")
	}
	n := len(p) - len(p)%2
	if s.speechFrames > 0 {
		s.speechFrames--
		for i := 0; i < n; i += 2 {
			v := int16(s.rng.IntN(20000) - 10000)
			p[i] = byte(v)
			p[i+1] = byte(v >> 8)
		}
		return n, nil
	}
	clear(p[:n])
	return n, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// failingStream reports a device error on the first read.
type failingStream struct{}

func (failingStream) Format() pcm.Format       { return pcm.L16Mono16K }
func (failingStream) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }
func (failingStream) Close() error             { return nil }

type fakeMic struct {
	speechFrames int
	openErr      error
	failReads    bool
	opens        atomic.Int32
}

func (m *fakeMic) Open(context.Context) (capture.Stream, error) {
	n := m.opens.Add(1)
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.failReads {
		return failingStream{}, nil
	}
	return &fakeStream{rng: rand.New(rand.NewPCG(uint64(n), 7)), speechFrames: m.speechFrames}, nil
}

type fakeTranscriber struct {
	mu      sync.Mutex
	texts   []string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeTranscriber) TranscribeAudio(ctx context.Context, audio []byte, mimeHint string) (string, error) {
	f.mu.Lock()
	f.calls++
	var text string
	if len(f.texts) > 0 {
		text = f.texts[0]
		if len(f.texts) > 1 {
			f.texts = f.texts[1:]
		}
	}
	err := f.err
	started, release := f.started, f.release
	f.started = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return text, err
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStreamer struct {
	mu      sync.Mutex
	chunks  []string
	err     error
	texts   []string
	started chan struct{}
	release chan struct{}
}

func (f *fakeStreamer) StreamChatCompletion(ctx context.Context, text string, onChunk func(string)) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	chunks, err := f.chunks, f.err
	started, release := f.started, f.release
	f.started = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, c := range chunks {
		onChunk(c)
	}
	return err
}

func (f *fakeStreamer) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.texts)
}

type fakeSpeaker struct {
	unit *capture.Unit

	mu       sync.Mutex
	spoken   []string
	overlaps int
	stops    int
	err      error
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	if f.unit != nil && f.unit.Active() {
		f.overlaps++
	}
	f.spoken = append(f.spoken, text)
	err := f.err
	started, release := f.started, f.release
	f.started = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSpeaker) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.spoken)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	// hook runs after each event is recorded. Set it before the session
	// starts publishing.
	hook func(Event)
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	hook := l.hook
	l.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (l *eventLog) texts(kind EventKind) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (l *eventLog) agents() []AgentState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AgentState
	for _, ev := range l.events {
		if ev.Kind == EventState && (len(out) == 0 || out[len(out)-1] != ev.State.Agent) {
			out = append(out, ev.State.Agent)
		}
	}
	return out
}

type harness struct {
	mic      *fakeMic
	stt      *fakeTranscriber
	streamer *fakeStreamer
	chat     *chat.Controller
	speaker  *fakeSpeaker
	events   *eventLog
	session  *Session
}

func newHarness(t *testing.T, mic *fakeMic, tr *fakeTranscriber, st *fakeStreamer) *harness {
	t.Helper()
	unit := capture.NewUnit(mic, capture.Config{})
	n := 0
	h := &harness{
		mic:      mic,
		stt:      tr,
		streamer: st,
		chat: chat.NewController(st, chat.WithIDFunc(func() string {
			n++
			return fmt.Sprintf("m%d", n)
		})),
		speaker: &fakeSpeaker{unit: unit},
		events:  &eventLog{},
	}
	s, err := New(Config{
		Capture: unit,
		STT:     stt.NewBridge(tr),
		Chat:    h.chat,
		Player:  h.speaker,
		OnEvent: h.events.add,
		Settings: Settings{
			StartDelay:             time.Millisecond,
			MaxConsecutiveFailures: 3,
			Backoff:                gax.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
			VAD:                    vad.Config{Threshold: 15, SilenceDuration: 60 * time.Millisecond, Interval: 2 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = s
	t.Cleanup(func() { s.Close() })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New with empty config succeeded")
	}
}

func TestHandsFreeRoundTrip(t *testing.T) {
	reply := "La sagesse commence dans l'étonnement."
	h := newHarness(t,
		&fakeMic{speechFrames: 40},
		&fakeTranscriber{texts: []string{"Qu'est-ce que la sagesse ?"}},
		&fakeStreamer{chunks: []string{"La sagesse", " commence", " dans l'étonnement."}},
	)

	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	if st := h.session.State(); !st.HandsFree || st.Mode != ModeListening || st.Agent != AgentListening {
		t.Fatalf("state after enter = %+v", st)
	}

	waitFor(t, "spoken reply", func() bool { return len(h.speaker.Spoken()) > 0 })
	if got := h.speaker.Spoken()[0]; got != reply {
		t.Fatalf("spoken %q, want %q", got, reply)
	}
	waitFor(t, "capture reopened", func() bool { return h.mic.opens.Load() >= 2 })

	if texts := h.streamer.Texts(); len(texts) == 0 || texts[0] != "Qu'est-ce que la sagesse ?" {
		t.Fatalf("chat texts = %q", texts)
	}
	msgs := h.chat.Messages()
	if len(msgs) < 3 || msgs[1].Role != chat.RoleUser || msgs[2].Content != reply || msgs[2].IsStreaming {
		t.Fatalf("history = %+v", msgs)
	}

	agents := h.events.agents()
	for _, want := range []AgentState{AgentListening, AgentThinking, AgentTalking} {
		if !slices.Contains(agents, want) {
			t.Fatalf("agent states %v missing %v", agents, want)
		}
	}
	hints := map[string]bool{}
	h.events.mu.Lock()
	for _, ev := range h.events.events {
		hints[ev.State.Hint] = true
	}
	h.events.mu.Unlock()
	if !hints[HintSpeak] || !hints[HintTranscribing] {
		t.Fatalf("hints seen = %v", hints)
	}

	if err := h.session.ExitHandsFree(); err != nil {
		t.Fatalf("ExitHandsFree: %v", err)
	}
	if st := h.session.State(); st.HandsFree || st.Mode != ModeIdle || st.Agent != AgentNone || st.Hint != "" {
		t.Fatalf("state after exit = %+v", st)
	}
	h.session.Close()
	if h.speaker.overlaps != 0 {
		t.Fatalf("playback overlapped capture %d times", h.speaker.overlaps)
	}
}

func TestHandsFreeEmptyTranscriptRestarts(t *testing.T) {
	h := newHarness(t, &fakeMic{speechFrames: 40}, &fakeTranscriber{texts: []string{""}}, &fakeStreamer{})
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "second capture", func() bool { return h.mic.opens.Load() >= 2 && h.stt.Calls() >= 1 })
	h.session.Close()
	if n := len(h.streamer.Texts()); n != 0 {
		t.Fatalf("chat called %d times", n)
	}
	if adv := h.events.texts(EventAdvisory); len(adv) != 0 {
		t.Fatalf("advisories = %q", adv)
	}
}

func TestHandsFreeExitDropsLateResult(t *testing.T) {
	tr := &fakeTranscriber{
		texts:   []string{"Trop tard"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	started := tr.started
	h := newHarness(t, &fakeMic{speechFrames: 40}, tr, &fakeStreamer{chunks: []string{"Réponse"}})

	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("transcription never started")
	}
	if err := h.session.ExitHandsFree(); err != nil {
		t.Fatalf("ExitHandsFree: %v", err)
	}
	close(tr.release)
	h.session.Close()

	if n := len(h.streamer.Texts()); n != 0 {
		t.Fatalf("chat called %d times after exit", n)
	}
	if n := len(h.speaker.Spoken()); n != 0 {
		t.Fatalf("spoke %d times after exit", n)
	}
	if n := h.mic.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times, want 1", n)
	}
	if st := h.session.State(); st.HandsFree || st.Agent != AgentNone {
		t.Fatalf("state = %+v", st)
	}
}

func TestHandsFreeFailureCap(t *testing.T) {
	h := newHarness(t, &fakeMic{openErr: fmt.Errorf("%w: no input", capture.ErrDevice)}, &fakeTranscriber{}, &fakeStreamer{})
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "advisories", func() bool { return len(h.events.texts(EventAdvisory)) >= 3 })
	want := []string{AdvisoryDevice, AdvisoryDevice, AdvisoryDeviceRetry}
	if adv := h.events.texts(EventAdvisory); !slices.Equal(adv, want) {
		t.Fatalf("advisories = %q, want %q", adv, want)
	}
	if n := h.mic.opens.Load(); n != 3 {
		t.Fatalf("opens = %d, want 3", n)
	}
	if st := h.session.State(); st.HandsFree || st.Mode != ModeIdle {
		t.Fatalf("state = %+v", st)
	}
}

func TestHandsFreePermissionDenied(t *testing.T) {
	h := newHarness(t, &fakeMic{openErr: capture.ErrPermissionDenied}, &fakeTranscriber{}, &fakeStreamer{})
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "advisory", func() bool { return len(h.events.texts(EventAdvisory)) > 0 })
	if adv := h.events.texts(EventAdvisory); adv[0] != AdvisoryPermissionDenied {
		t.Fatalf("advisory = %q", adv[0])
	}
	time.Sleep(20 * time.Millisecond)
	if n := h.mic.opens.Load(); n != 1 {
		t.Fatalf("opens = %d, want 1", n)
	}
	if h.session.State().HandsFree {
		t.Fatal("still hands-free")
	}
}

func TestHandsFreeMissingCredential(t *testing.T) {
	h := newHarness(t,
		&fakeMic{speechFrames: 40},
		&fakeTranscriber{texts: []string{"Bonjour"}},
		&fakeStreamer{err: fmt.Errorf("%w: GROQ_API_KEY", chat.ErrMissingCredential)},
	)
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "advisory", func() bool { return len(h.events.texts(EventAdvisory)) > 0 })
	if adv := h.events.texts(EventAdvisory); adv[0] != AdvisoryMissingKey {
		t.Fatalf("advisory = %q", adv[0])
	}
	if h.session.State().HandsFree {
		t.Fatal("still hands-free")
	}
}

func TestPushToTalkEmptyTranscript(t *testing.T) {
	h := newHarness(t, &fakeMic{speechFrames: 5}, &fakeTranscriber{texts: []string{""}}, &fakeStreamer{})

	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if st := h.session.State(); !st.Recording || st.Agent != AgentListening {
		t.Fatalf("state while recording = %+v", st)
	}
	time.Sleep(30 * time.Millisecond)
	if err := h.session.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	waitFor(t, "advisory", func() bool { return len(h.events.texts(EventAdvisory)) > 0 })
	if adv := h.events.texts(EventAdvisory); len(adv) != 1 || adv[0] != AdvisoryNotUnderstood {
		t.Fatalf("advisories = %q", adv)
	}
	if n := len(h.streamer.Texts()); n != 0 {
		t.Fatalf("chat called %d times", n)
	}
	if st := h.session.State(); st.Recording || st.Agent != AgentNone {
		t.Fatalf("state = %+v", st)
	}
}

func TestPushToTalkDraft(t *testing.T) {
	h := newHarness(t, &fakeMic{speechFrames: 5}, &fakeTranscriber{texts: []string{"Qui était Socrate ?"}}, &fakeStreamer{})

	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("second StartRecording: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := h.session.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	waitFor(t, "draft", func() bool { return len(h.events.texts(EventDraft)) > 0 })
	if d := h.events.texts(EventDraft); d[0] != "Qui était Socrate ?" {
		t.Fatalf("draft = %q", d[0])
	}
	h.events.mu.Lock()
	for _, ev := range h.events.events {
		if ev.Kind == EventDraft && (ev.Duration <= 0 || ev.Bytes <= 0) {
			t.Errorf("draft without recording info: %+v", ev)
		}
	}
	h.events.mu.Unlock()
	if n := len(h.streamer.Texts()); n != 0 {
		t.Fatalf("chat called %d times", n)
	}
	if n := h.mic.opens.Load(); n != 1 {
		t.Fatalf("opens = %d", n)
	}
}

func TestStartRecordingPermissionDenied(t *testing.T) {
	h := newHarness(t, &fakeMic{openErr: capture.ErrPermissionDenied}, &fakeTranscriber{}, &fakeStreamer{})
	if err := h.session.StartRecording(); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("StartRecording err = %v", err)
	}
	if adv := h.events.texts(EventAdvisory); len(adv) != 1 || adv[0] != AdvisoryPermissionDenied {
		t.Fatalf("advisories = %q", adv)
	}
	if st := h.session.State(); st.Recording || st.VoiceActive {
		t.Fatalf("state = %+v", st)
	}
}

func TestManualDeviceFailureClearsVoiceActive(t *testing.T) {
	h := newHarness(t, &fakeMic{failReads: true}, &fakeTranscriber{}, &fakeStreamer{})
	if _, err := h.session.ToggleVoiceChat(); err != nil {
		t.Fatalf("ToggleVoiceChat: %v", err)
	}
	waitFor(t, "advisory", func() bool { return len(h.events.texts(EventAdvisory)) > 0 })
	if adv := h.events.texts(EventAdvisory); adv[0] != AdvisoryDevice {
		t.Fatalf("advisory = %q", adv[0])
	}
	if st := h.session.State(); st.VoiceActive || st.Recording {
		t.Fatalf("state = %+v", st)
	}
}

func TestVoiceActiveLoop(t *testing.T) {
	h := newHarness(t,
		&fakeMic{speechFrames: 5},
		&fakeTranscriber{texts: []string{"Qui es-tu ?"}},
		&fakeStreamer{chunks: []string{"Un simple questionneur."}},
	)

	on, err := h.session.ToggleVoiceChat()
	if err != nil || !on {
		t.Fatalf("ToggleVoiceChat = %v, %v", on, err)
	}
	if st := h.session.State(); !st.VoiceActive || !st.Recording || !st.SpeakReplies {
		t.Fatalf("state = %+v", st)
	}
	time.Sleep(30 * time.Millisecond)
	if err := h.session.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	waitFor(t, "reply spoken", func() bool { return len(h.speaker.Spoken()) == 1 })
	waitFor(t, "recording restarted", func() bool { return h.session.State().Recording })
	if got := h.speaker.Spoken()[0]; got != "Un simple questionneur." {
		t.Fatalf("spoken %q", got)
	}
	if n := h.mic.opens.Load(); n != 2 {
		t.Fatalf("opens = %d, want 2", n)
	}

	on, err = h.session.ToggleVoiceChat()
	if err != nil || on {
		t.Fatalf("ToggleVoiceChat off = %v, %v", on, err)
	}
	if st := h.session.State(); st.VoiceActive || st.Recording || st.Agent != AgentNone {
		t.Fatalf("state after off = %+v", st)
	}
	h.session.Close()
	if h.speaker.overlaps != 0 {
		t.Fatalf("playback overlapped capture %d times", h.speaker.overlaps)
	}
}

func TestManualOperationsRejectedInHandsFree(t *testing.T) {
	h := newHarness(t, &fakeMic{}, &fakeTranscriber{}, &fakeStreamer{})
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	if err := h.session.StartRecording(); !errors.Is(err, ErrHandsFree) {
		t.Fatalf("StartRecording err = %v", err)
	}
	if _, err := h.session.ToggleVoiceChat(); !errors.Is(err, ErrHandsFree) {
		t.Fatalf("ToggleVoiceChat err = %v", err)
	}
	if _, err := h.session.SendText(context.Background(), "Salut"); !errors.Is(err, ErrHandsFree) {
		t.Fatalf("SendText err = %v", err)
	}
}

func TestSendText(t *testing.T) {
	h := newHarness(t, &fakeMic{}, &fakeTranscriber{}, &fakeStreamer{chunks: []string{"Connais-toi toi-même."}})

	reply, err := h.session.SendText(context.Background(), "Un conseil ?")
	if err != nil || reply != "Connais-toi toi-même." {
		t.Fatalf("SendText = %q, %v", reply, err)
	}
	if n := len(h.speaker.Spoken()); n != 0 {
		t.Fatalf("spoke %d times with replies muted", n)
	}

	if err := h.session.SetSpeakReplies(true); err != nil {
		t.Fatalf("SetSpeakReplies: %v", err)
	}
	if _, err := h.session.SendText(context.Background(), "Encore ?"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := h.speaker.Spoken(); len(got) != 1 || got[0] != "Connais-toi toi-même." {
		t.Fatalf("spoken = %q", got)
	}
	if h.speaker.Stops() == 0 {
		t.Fatal("SetSpeakReplies did not stop playback")
	}
}

func TestSendTextMissingCredential(t *testing.T) {
	h := newHarness(t, &fakeMic{}, &fakeTranscriber{}, &fakeStreamer{err: chat.ErrMissingCredential})
	_, err := h.session.SendText(context.Background(), "Bonjour")
	if !errors.Is(err, chat.ErrMissingCredential) {
		t.Fatalf("err = %v", err)
	}
	if adv := h.events.texts(EventAdvisory); len(adv) != 1 || adv[0] != AdvisoryMissingKey {
		t.Fatalf("advisories = %q", adv)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, &fakeMic{}, &fakeTranscriber{}, &fakeStreamer{})
	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := h.session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.session.StartRecording(); !errors.Is(err, ErrClosed) {
		t.Fatalf("StartRecording after Close err = %v", err)
	}
	if err := h.session.EnterHandsFree(); !errors.Is(err, ErrClosed) {
		t.Fatalf("EnterHandsFree after Close err = %v", err)
	}
	if err := h.session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(Snapshot{HandsFree: true, Mode: ModeProcessing, Agent: agentFor(ModeProcessing), Hint: HintTranscribing})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"hands_free":true,"voice_active":false,"speak_replies":false,"recording":false,"mode":"processing","agent":"thinking","hint":"Transcription..."}`
	if string(data) != want {
		t.Fatalf("json = %s", data)
	}
}

func TestHandsFreeTranscriptionErrorRetries(t *testing.T) {
	h := newHarness(t,
		&fakeMic{speechFrames: 40},
		&fakeTranscriber{err: errors.New("502 bad gateway")},
		&fakeStreamer{},
	)
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "second transcription", func() bool { return h.stt.Calls() >= 2 })
	adv := h.events.texts(EventAdvisory)
	if len(adv) == 0 || adv[0] != AdvisoryTranscription {
		t.Fatalf("advisories = %q", adv)
	}
	if n := h.mic.opens.Load(); n < 2 {
		t.Fatalf("opens = %d, want a new capture after the failure", n)
	}

	waitFor(t, "failure cap", func() bool { return len(h.events.texts(EventAdvisory)) >= 3 })
	want := []string{AdvisoryTranscription, AdvisoryTranscription, AdvisoryTranscription}
	if adv := h.events.texts(EventAdvisory); !slices.Equal(adv, want) {
		t.Fatalf("advisories = %q, want %q", adv, want)
	}
	waitFor(t, "hands-free off", func() bool { return !h.session.State().HandsFree })
	if n := len(h.streamer.Texts()); n != 0 {
		t.Fatalf("chat called %d times", n)
	}
}

func TestHandsFreeChatFailureCap(t *testing.T) {
	h := newHarness(t,
		&fakeMic{speechFrames: 40},
		&fakeTranscriber{texts: []string{"Pourquoi ?"}},
		&fakeStreamer{err: errors.New("503 service unavailable")},
	)
	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	waitFor(t, "advisory", func() bool { return len(h.events.texts(EventAdvisory)) > 0 })
	if adv := h.events.texts(EventAdvisory); !slices.Equal(adv, []string{AdvisoryHandsFreeStopped}) {
		t.Fatalf("advisories = %q", adv)
	}
	if n := len(h.streamer.Texts()); n != 3 {
		t.Fatalf("chat called %d times, want 3", n)
	}
	if n := len(h.speaker.Spoken()); n != 0 {
		t.Fatalf("spoke %d times", n)
	}
	waitFor(t, "hands-free off", func() bool { return !h.session.State().HandsFree })
}

func TestHandsFreeExitDuringChatDropsReply(t *testing.T) {
	st := &fakeStreamer{
		chunks:  []string{"Trop tard"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	started := st.started
	h := newHarness(t, &fakeMic{speechFrames: 40}, &fakeTranscriber{texts: []string{"Et alors ?"}}, st)

	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("chat request never started")
	}
	if err := h.session.ExitHandsFree(); err != nil {
		t.Fatalf("ExitHandsFree: %v", err)
	}
	close(st.release)
	h.session.Close()

	if n := len(h.speaker.Spoken()); n != 0 {
		t.Fatalf("spoke %d times after exit", n)
	}
	if n := h.mic.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times, want 1", n)
	}
	if st := h.session.State(); st.HandsFree || st.Agent != AgentNone {
		t.Fatalf("state = %+v", st)
	}
	if adv := h.events.texts(EventAdvisory); len(adv) != 0 {
		t.Fatalf("advisories = %q", adv)
	}
}

func TestHandsFreeExitWhileSpeaking(t *testing.T) {
	h := newHarness(t,
		&fakeMic{speechFrames: 40},
		&fakeTranscriber{texts: []string{"Qu'est-ce que le bien ?"}},
		&fakeStreamer{chunks: []string{"Le bien se cherche."}},
	)
	started := make(chan struct{})
	release := make(chan struct{})
	h.speaker.mu.Lock()
	h.speaker.started, h.speaker.release = started, release
	h.speaker.mu.Unlock()

	if err := h.session.EnterHandsFree(); err != nil {
		t.Fatalf("EnterHandsFree: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("playback never started")
	}
	if st := h.session.State(); st.Agent != AgentTalking {
		t.Fatalf("agent while speaking = %v", st.Agent)
	}
	stops := h.speaker.Stops()
	if err := h.session.ExitHandsFree(); err != nil {
		t.Fatalf("ExitHandsFree: %v", err)
	}
	if st := h.session.State(); st.HandsFree || st.Mode != ModeIdle || st.Agent != AgentNone {
		t.Fatalf("state after exit = %+v", st)
	}
	if h.speaker.Stops() <= stops {
		t.Fatal("exit did not stop playback")
	}
	close(release)
	h.session.Close()

	if n := h.mic.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times, want 1", n)
	}
	if n := len(h.speaker.Spoken()); n != 1 {
		t.Fatalf("spoken %d times, want 1", n)
	}
}

func TestOnEventMayReadState(t *testing.T) {
	h := newHarness(t, &fakeMic{speechFrames: 2}, &fakeTranscriber{texts: []string{""}}, &fakeStreamer{})
	h.events.mu.Lock()
	h.events.hook = func(Event) {
		time.Sleep(time.Millisecond)
		h.session.State()
	}
	h.events.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				h.session.SetSpeakReplies(i%2 == 0)
			}
		}()
		for i := 0; i < 10; i++ {
			if err := h.session.StartRecording(); err != nil && !errors.Is(err, ErrBusy) {
				t.Errorf("StartRecording: %v", err)
				break
			}
			time.Sleep(5 * time.Millisecond)
			if err := h.session.StopRecording(); err != nil {
				t.Errorf("StopRecording: %v", err)
				break
			}
		}
		wg.Wait()
		h.session.Close()
	}()

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("session hung while an event handler read State")
	}
}
