package genx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var _ Generator = (*Mux)(nil)

// Mux routes a model name to a registered Generator. A pattern ending in
// "/" matches every model under that prefix, e.g. "groq/".
type Mux struct {
	mu   sync.RWMutex
	gens map[string]Generator
}

func NewMux() *Mux {
	return &Mux{gens: make(map[string]Generator)}
}

// Handle registers gen for pattern. Registering a pattern twice fails.
func (m *Mux) Handle(pattern string, gen Generator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gens[pattern]; ok {
		return fmt.Errorf("genx: generator already registered for %s", pattern)
	}
	m.gens[pattern] = gen
	return nil
}

func (m *Mux) GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error) {
	gen, err := m.lookup(model)
	if err != nil {
		return nil, err
	}
	return gen.GenerateStream(ctx, model, mctx)
}

func (m *Mux) lookup(model string) (Generator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gens[model]; ok {
		return g, nil
	}
	var best string
	for p := range m.gens {
		if strings.HasSuffix(p, "/") && strings.HasPrefix(model, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return nil, fmt.Errorf("genx: generator not found for %s", model)
	}
	return m.gens[best], nil
}
