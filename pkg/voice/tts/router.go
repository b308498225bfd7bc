package tts

import (
	"context"
	"fmt"
	"sync"
)

// Router dispatches on Options.Provider. An empty provider goes to the
// default voice.
type Router struct {
	mu       sync.RWMutex
	def      string
	handlers map[string]CloudVoice
}

var _ CloudVoice = (*Router)(nil)

// NewRouter returns a Router whose default provider is def.
func NewRouter(def string) *Router {
	return &Router{def: def, handlers: make(map[string]CloudVoice)}
}

// Handle registers voice under provider.
func (r *Router) Handle(provider string, voice CloudVoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[provider]; ok {
		return fmt.Errorf("tts: provider %q already registered", provider)
	}
	r.handlers[provider] = voice
	return nil
}

// Providers returns the number of registered providers.
func (r *Router) Providers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Router) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	name := opts.Provider
	if name == "" {
		name = r.def
	}
	r.mu.RLock()
	voice, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tts: provider %q not found", name)
	}
	return voice.Synthesize(ctx, text, opts)
}
