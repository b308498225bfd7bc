// Package kv is a small key-value store with path-like keys. It backs the
// synthesized speech cache. Badger is used on disk and Memory in tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: not found")

// Key is a path of segments, e.g. Key{"tts", "polly", "ab12"}.
// Segments must not contain ':'.
type Key []string

const sep = ':'

// String joins the segments with ':'.
func (k Key) String() string { return strings.Join(k, string(sep)) }

func (k Key) encode() []byte { return []byte(k.String()) }

func decodeKey(b []byte) Key { return Key(strings.Split(string(b), string(sep))) }

// Entry is a key with its value, as produced by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Memory and Badger.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key Key) error
	// List yields the entries below prefix in key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}
