// Package fallback runs an ordered list of alternatives and keeps the
// first one that succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoStrategies is returned by First when called with an empty list.
var ErrNoStrategies = errors.New("fallback: no strategies")

// Strategy is one named alternative.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// First runs strategies in order and returns the first successful result
// together with the index of the strategy that produced it. When all
// fail, the joined errors are returned. A cancelled ctx stops the walk
// before the next strategy starts.
func First[T any](ctx context.Context, strategies ...Strategy[T]) (T, int, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, -1, ErrNoStrategies
	}
	var errs []error
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return zero, -1, errors.Join(errs...)
		}
		v, err := s.Run(ctx)
		if err == nil {
			return v, i, nil
		}
		slog.Debug("fallback: strategy failed", "name", s.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return zero, -1, errors.Join(errs...)
}

// Pick returns items[rnd(len(items))], the usual way of choosing one of
// several canned replies. rnd must return a value in [0, n).
func Pick[T any](items []T, rnd func(n int) int) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	i := 0
	if rnd != nil {
		i = rnd(len(items))
	}
	if i < 0 || i >= len(items) {
		i = 0
	}
	return items[i]
}
