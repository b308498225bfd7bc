package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/socratchat/pkg/kv"
)

// Cached remembers clips produced by a CloudVoice.
type Cached struct {
	Voice CloudVoice
	Store kv.Store
}

var _ CloudVoice = (*Cached)(nil)

// NewCached returns voice backed by store.
func NewCached(voice CloudVoice, store kv.Store) *Cached {
	return &Cached{Voice: voice, Store: store}
}

const cachePrefix = "tts"

func cacheKey(text string, opts Options) kv.Key {
	sum := sha256.Sum256([]byte(text))
	return kv.Key{cachePrefix, opts.Provider, opts.Voice, opts.Language, opts.Engine, hex.EncodeToString(sum[:16])}
}

func (c *Cached) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	key := cacheKey(text, opts)
	if b, err := c.Store.Get(ctx, key); err == nil {
		var clip Clip
		if err := msgpack.Unmarshal(b, &clip); err == nil && len(clip.Data) > 0 {
			slog.Debug("tts: cache hit", "key", key.String())
			return &clip, nil
		}
		slog.Warn("tts: dropping corrupt cache entry", "key", key.String())
		_ = c.Store.Delete(ctx, key)
	} else if !errors.Is(err, kv.ErrNotFound) {
		slog.Warn("tts: cache read failed", "error", err)
	}

	clip, err := c.Voice.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(clip)
	if err != nil {
		return nil, fmt.Errorf("tts: encode clip: %w", err)
	}
	if err := c.Store.Set(ctx, key, b); err != nil {
		slog.Warn("tts: cache write failed", "error", err)
	}
	return clip, nil
}

// CacheStats summarizes the clips held in a speech cache.
type CacheStats struct {
	Clips int `json:"clips" yaml:"clips"`
	Bytes int `json:"bytes" yaml:"bytes"`
}

// Stats counts the cached clips in store.
func Stats(ctx context.Context, store kv.Store) (CacheStats, error) {
	var st CacheStats
	for e, err := range store.List(ctx, kv.Key{cachePrefix}) {
		if err != nil {
			return st, fmt.Errorf("tts: list cache: %w", err)
		}
		st.Clips++
		st.Bytes += len(e.Value)
	}
	return st, nil
}

// Purge deletes every cached clip in store and reports how many it removed.
func Purge(ctx context.Context, store kv.Store) (int, error) {
	var keys []kv.Key
	for e, err := range store.List(ctx, kv.Key{cachePrefix}) {
		if err != nil {
			return 0, fmt.Errorf("tts: list cache: %w", err)
		}
		keys = append(keys, e.Key)
	}
	for i, k := range keys {
		if err := store.Delete(ctx, k); err != nil {
			return i, fmt.Errorf("tts: purge cache: %w", err)
		}
	}
	return len(keys), nil
}
