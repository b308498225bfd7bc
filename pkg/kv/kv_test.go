package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/socratchat/pkg/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": b,
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"tts", "polly", "abc"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing = %v", err)
			}
			if err := s.Set(ctx, key, []byte("clip")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "clip" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete = %v", err)
			}
		})
	}
}

func TestListPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set(ctx, kv.Key{"tts", "a"}, []byte("1"))
			s.Set(ctx, kv.Key{"tts", "b"}, []byte("2"))
			s.Set(ctx, kv.Key{"ttsx", "c"}, []byte("3"))

			var keys []string
			for e, err := range s.List(ctx, kv.Key{"tts"}) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				keys = append(keys, e.Key.String())
			}
			if len(keys) != 2 || keys[0] != "tts:a" || keys[1] != "tts:b" {
				t.Fatalf("keys = %v", keys)
			}
		})
	}
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
