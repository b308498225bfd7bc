package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
	"github.com/haivivi/socratchat/pkg/kv"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		text string
		want Locale
	}{
		{"La sagesse commence dans l'étonnement.", French},
		{"C'est une bonne question", French},
		{"Nous sommes dans la caverne", French},
		{"Ça va", French},
		{"Know thyself.", English},
		{"", English},
	}
	for _, tt := range tests {
		if got := DetectLocale(tt.text); got != tt.want {
			t.Errorf("DetectLocale(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestCascade(t *testing.T) {
	got := Cascade(French)
	want := []Options{
		{Provider: ProviderPolly, Voice: "Mathieu", Language: "fr-FR"},
		{Voice: "Mathieu", Language: "fr-FR", Engine: "neural"},
		{Language: "fr-FR"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Cascade[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type fakeVoice struct {
	mu    sync.Mutex
	calls []Options
	fail  map[int]bool
	clip  *Clip
}

func (v *fakeVoice) Synthesize(_ context.Context, _ string, opts Options) (*Clip, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := len(v.calls)
	v.calls = append(v.calls, opts)
	if v.fail[n] {
		return nil, errors.New("synthesis unavailable")
	}
	if v.clip != nil {
		return v.clip, nil
	}
	return &Clip{MIMEType: MIMEPCM, Data: []byte{1, 2, 3, 4}, SampleRate: 24000}, nil
}

func (v *fakeVoice) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

type fakeOutput struct {
	mu      sync.Mutex
	played  int
	block   bool
	started chan struct{}
}

func (o *fakeOutput) PlayClip(ctx context.Context, _ *Clip) error {
	o.mu.Lock()
	o.played++
	o.mu.Unlock()
	if o.started != nil {
		o.started <- struct{}{}
	}
	if o.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type fakeLocal struct {
	available bool
	err       error
	spoken    []string
}

func (l *fakeLocal) Available() bool { return l.available }

func (l *fakeLocal) Speak(_ context.Context, text string, _ Locale) error {
	l.spoken = append(l.spoken, text)
	return l.err
}

func TestPlayerCascadeOrder(t *testing.T) {
	voice := &fakeVoice{fail: map[int]bool{0: true, 1: true}}
	out := &fakeOutput{}
	p := &Player{Voice: voice, Output: out}
	if err := p.Speak(context.Background(), "Bonjour, c'est Socrate."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(voice.calls) != 3 {
		t.Fatalf("cloud calls = %d, want 3", len(voice.calls))
	}
	if voice.calls[0].Provider != ProviderPolly || voice.calls[1].Engine != "neural" || voice.calls[2].Voice != "" {
		t.Fatalf("calls = %+v", voice.calls)
	}
	if out.played != 1 {
		t.Fatalf("played = %d", out.played)
	}
}

func TestPlayerLocalFallback(t *testing.T) {
	voice := &fakeVoice{fail: map[int]bool{0: true, 1: true, 2: true}}
	local := &fakeLocal{available: true}
	p := &Player{Voice: voice, Output: &fakeOutput{}, Local: local}
	if err := p.Speak(context.Background(), "Know thyself"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(local.spoken) != 1 || local.spoken[0] != "Know thyself" {
		t.Fatalf("local spoken = %v", local.spoken)
	}

	local.err = errors.New("espeak: exit status 1")
	if err := p.Speak(context.Background(), "Know thyself"); !errors.Is(err, ErrPlayback) {
		t.Fatalf("Speak err = %v, want ErrPlayback", err)
	}
}

func TestPlayerNoEngineCompletes(t *testing.T) {
	p := &Player{Local: &fakeLocal{}}
	if err := p.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if p.Speaking() {
		t.Fatal("still speaking")
	}
}

func TestPlayerInterrupt(t *testing.T) {
	out := &fakeOutput{block: true, started: make(chan struct{}, 2)}
	p := &Player{Voice: &fakeVoice{}, Output: out}

	first := make(chan error, 1)
	go func() { first <- p.Speak(context.Background(), "first") }()
	<-out.started

	second := make(chan error, 1)
	go func() { second <- p.Speak(context.Background(), "second") }()
	if err := <-first; !errors.Is(err, ErrInterrupted) {
		t.Fatalf("first Speak = %v, want ErrInterrupted", err)
	}
	<-out.started
	if !p.Speaking() {
		t.Fatal("second utterance not in flight")
	}

	p.Stop()
	if err := <-second; !errors.Is(err, ErrInterrupted) {
		t.Fatalf("second Speak = %v, want ErrInterrupted", err)
	}
	if p.Speaking() {
		t.Fatal("speaking after Stop")
	}
	p.Stop()
}

func TestPlayerContextCancel(t *testing.T) {
	out := &fakeOutput{block: true, started: make(chan struct{}, 1)}
	p := &Player{Voice: &fakeVoice{}, Output: out, Local: &fakeLocal{available: true}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Speak(ctx, "hello") }()
	<-out.started
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Speak = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return")
	}
}

func TestRouter(t *testing.T) {
	a, b := &fakeVoice{}, &fakeVoice{}
	r := NewRouter("a")
	if err := r.Handle("a", a); err != nil {
		t.Fatal(err)
	}
	if err := r.Handle(ProviderPolly, b); err != nil {
		t.Fatal(err)
	}
	if err := r.Handle("a", b); err == nil {
		t.Fatal("duplicate Handle succeeded")
	}
	if _, err := r.Synthesize(context.Background(), "x", Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Synthesize(context.Background(), "x", Options{Provider: ProviderPolly}); err != nil {
		t.Fatal(err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("calls a=%d b=%d", a.count(), b.count())
	}
	if _, err := r.Synthesize(context.Background(), "x", Options{Provider: "nope"}); err == nil {
		t.Fatal("unknown provider succeeded")
	}
}

func TestCached(t *testing.T) {
	voice := &fakeVoice{clip: &Clip{MIMEType: MIMEMP3, Data: []byte("mp3"), SampleRate: 24000}}
	store := kv.NewMemory()
	c := NewCached(voice, store)
	opts := Options{Provider: ProviderPolly, Voice: "Mathieu", Language: "fr-FR"}
	for range 3 {
		clip, err := c.Synthesize(context.Background(), "Connais-toi toi-même", opts)
		if err != nil {
			t.Fatal(err)
		}
		if clip.MIMEType != MIMEMP3 || string(clip.Data) != "mp3" || clip.SampleRate != 24000 {
			t.Fatalf("clip = %+v", clip)
		}
	}
	if voice.count() != 1 {
		t.Fatalf("voice calls = %d, want 1", voice.count())
	}
	if _, err := c.Synthesize(context.Background(), "Connais-toi toi-même", Options{Language: "fr-FR"}); err != nil {
		t.Fatal(err)
	}
	if voice.count() != 2 {
		t.Fatalf("different options served from cache")
	}
}

func TestCacheStatsAndPurge(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if err := store.Set(ctx, kv.Key{"other", "x"}, []byte("keep")); err != nil {
		t.Fatal(err)
	}
	c := NewCached(&fakeVoice{clip: &Clip{MIMEType: MIMEMP3, Data: []byte("mp3"), SampleRate: 24000}}, store)
	for _, text := range []string{"Bonjour", "Au revoir"} {
		if _, err := c.Synthesize(ctx, text, Options{Language: "fr-FR"}); err != nil {
			t.Fatal(err)
		}
	}

	st, err := Stats(ctx, store)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Clips != 2 || st.Bytes == 0 {
		t.Fatalf("stats = %+v", st)
	}
	n, err := Purge(ctx, store)
	if err != nil || n != 2 {
		t.Fatalf("Purge = %d, %v", n, err)
	}
	if st, _ := Stats(ctx, store); st.Clips != 0 {
		t.Fatalf("stats after purge = %+v", st)
	}
	if _, err := store.Get(ctx, kv.Key{"other", "x"}); err != nil {
		t.Fatalf("purge removed unrelated key: %v", err)
	}
}

type fakePolly struct {
	in  *polly.SynthesizeSpeechInput
	err error
}

func (f *fakePolly) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader("ID3..."))}, nil
}

func TestPolly(t *testing.T) {
	client := &fakePolly{}
	p := NewPolly(client, WithPollyEngine("standard"))
	clip, err := p.Synthesize(context.Background(), "Bonjour", Options{Voice: "Mathieu", Language: "fr-FR", Engine: "neural"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.MIMEType != MIMEMP3 || clip.SampleRate != 24000 {
		t.Fatalf("clip = %+v", clip)
	}
	in := client.in
	if *in.Text != "Bonjour" || in.VoiceId != "Mathieu" || in.LanguageCode != "fr-FR" || in.Engine != types.EngineNeural || in.OutputFormat != types.OutputFormatMp3 || *in.SampleRate != "24000" {
		t.Fatalf("input = %+v", in)
	}

	if _, err := p.Synthesize(context.Background(), "Hi", Options{}); err != nil {
		t.Fatal(err)
	}
	if client.in.VoiceId != "Matthew" || client.in.Engine != "standard" {
		t.Fatalf("defaults: voice=%s engine=%s", client.in.VoiceId, client.in.Engine)
	}

	if _, err := p.Synthesize(context.Background(), "Bonjour", Options{Language: French.Language}); err != nil {
		t.Fatal(err)
	}
	if client.in.VoiceId != "Mathieu" || client.in.LanguageCode != "fr-FR" {
		t.Fatalf("language only: voice=%s language=%s", client.in.VoiceId, client.in.LanguageCode)
	}

	client.err = &smithy.GenericAPIError{Code: "TextLengthExceededException", Message: "too long"}
	_, err = p.Synthesize(context.Background(), "x", Options{})
	if err == nil || !strings.Contains(err.Error(), "TextLengthExceededException") {
		t.Fatalf("err = %v", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("api error not unwrappable")
	}
}

func TestOpenAISpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"voice":"nova"`, `"response_format":"pcm"`, `"model":"tts-1"`} {
			if !bytes.Contains(body, []byte(want)) {
				t.Errorf("body %s missing %s", body, want)
			}
		}
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(make([]byte, 480))
	}))
	defer srv.Close()
	client := openai.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	s := &OpenAISpeech{Client: &client, Voice: "nova"}
	clip, err := s.Synthesize(context.Background(), "hello", Options{Voice: "Matthew"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.MIMEType != MIMEPCM || clip.SampleRate != 24000 || len(clip.Data) != 480 {
		t.Fatalf("clip = %s %d %d", clip.MIMEType, clip.SampleRate, len(clip.Data))
	}
}

type fakeSpeaker struct {
	data []byte
}

func (s *fakeSpeaker) Format() pcm.Format { return pcm.L16Mono24K }

func (s *fakeSpeaker) Play(_ context.Context, data []byte) error {
	s.data = append(s.data, data...)
	return nil
}

func TestOutputPlayClip(t *testing.T) {
	sp := &fakeSpeaker{}
	o := NewOutput(sp)
	raw := make([]byte, 4800)
	if err := o.PlayClip(context.Background(), &Clip{MIMEType: MIMEPCM, Data: raw, SampleRate: 24000}); err != nil {
		t.Fatalf("PlayClip pcm: %v", err)
	}
	if len(sp.data) != 4800 {
		t.Fatalf("played %d bytes, want 4800", len(sp.data))
	}

	sp.data = nil
	wav := pcm.EncodeWAV(pcm.L16Mono24K, raw)
	if err := o.PlayClip(context.Background(), &Clip{MIMEType: MIMEWAV, Data: wav}); err != nil {
		t.Fatalf("PlayClip wav: %v", err)
	}
	if len(sp.data) != 4800 {
		t.Fatalf("played %d bytes, want 4800", len(sp.data))
	}

	if err := o.PlayClip(context.Background(), &Clip{MIMEType: "audio/flac", Data: raw}); !errors.Is(err, ErrUnsupportedClip) {
		t.Fatalf("flac err = %v", err)
	}
	if err := o.PlayClip(context.Background(), &Clip{MIMEType: MIMEMP3, Data: []byte("not an mp3")}); err == nil {
		t.Fatal("bad mp3 played")
	}
}

func TestLocalArgs(t *testing.T) {
	l := &LocalSynthesizer{Command: "/usr/bin/espeak-ng", name: "espeak-ng", Rate: 1, Pitch: 1}
	got := strings.Join(l.args("Bonjour", French), " ")
	if got != "-v fr -s 175 -p 50 -- Bonjour" {
		t.Fatalf("espeak args = %q", got)
	}
	l = &LocalSynthesizer{Command: "/usr/bin/say", name: "say"}
	got = strings.Join(l.args("Hello", English), " ")
	if got != "-r 175 -- Hello" {
		t.Fatalf("say args = %q", got)
	}
	if (&LocalSynthesizer{}).Available() {
		t.Fatal("empty synthesizer available")
	}
}
