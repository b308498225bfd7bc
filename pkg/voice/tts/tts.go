// Package tts speaks assistant replies.
//
// A Player tries cloud voices first, in a fixed cascade of option sets,
// then the platform speech command, and finally gives up silently. Only
// one utterance plays at a time: starting a new one interrupts the
// previous.
package tts

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrPlayback means nothing could be heard.
	ErrPlayback = errors.New("tts: playback failed")
	// ErrInterrupted is returned by Speak when a newer Speak or Stop
	// cut it short.
	ErrInterrupted = errors.New("tts: interrupted")
	// ErrUnsupportedClip is returned for audio the output cannot decode.
	ErrUnsupportedClip = errors.New("tts: unsupported clip")
)

// Clip MIME types produced by the cloud voices.
const (
	MIMEMP3 = "audio/mpeg"
	MIMEWAV = "audio/wav"
	// MIMEPCM is little-endian s16 mono; the rate is in Clip.SampleRate.
	MIMEPCM = "audio/L16"
)

// Clip is a synthesized utterance.
type Clip struct {
	MIMEType   string `msgpack:"mime"`
	Data       []byte `msgpack:"data"`
	SampleRate int    `msgpack:"rate,omitempty"`
}

// Options select a cloud voice. Empty fields take provider defaults.
type Options struct {
	Provider string
	Voice    string
	Language string
	Engine   string
}

// CloudVoice synthesizes text remotely.
type CloudVoice interface {
	Synthesize(ctx context.Context, text string, opts Options) (*Clip, error)
}

// Locale is the language and default cloud voice for a reply.
type Locale struct {
	Language string
	Voice    string
}

var (
	French  = Locale{Language: "fr-FR", Voice: "Mathieu"}
	English = Locale{Language: "en-US", Voice: "Matthew"}
)

// LocaleFor returns the locale whose language is language, English
// when none matches.
func LocaleFor(language string) Locale {
	if language == French.Language {
		return French
	}
	return English
}

var frenchAccents = regexp.MustCompile(`[àâäéèêëïîôùûüÿç]`)

// DetectLocale picks French when the text has French accents or common
// French words, English otherwise.
func DetectLocale(text string) Locale {
	if frenchAccents.MatchString(text) {
		return French
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "c'est") || strings.Contains(lower, "dans") {
		return French
	}
	return English
}

// Cascade returns the cloud option sets tried in order for loc.
func Cascade(loc Locale) []Options {
	return []Options{
		{Provider: ProviderPolly, Voice: loc.Voice, Language: loc.Language},
		{Voice: loc.Voice, Language: loc.Language, Engine: "neural"},
		{Language: loc.Language},
	}
}
