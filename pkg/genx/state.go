package genx

import (
	"errors"
	"fmt"
)

// ErrDone is wrapped by the error a Stream returns after its last chunk.
var ErrDone = errors.New("genx: done")

// ErrTruncated is wrapped when generation stopped at the token limit.
var ErrTruncated = errors.New("genx: generate truncated")

// Status is the terminal state of a stream.
type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDone:
		return "done"
	case StatusTruncated:
		return "truncated"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is the error a Stream returns when it ends. It carries the usage
// reported with the final chunk.
type State struct {
	usage  Usage
	status Status
	err    error
}

func Done(u Usage) *State {
	return &State{usage: u, status: StatusDone, err: ErrDone}
}

func Truncated(u Usage) *State {
	return &State{usage: u, status: StatusTruncated, err: ErrTruncated}
}

func Blocked(u Usage, refusal string) *State {
	return &State{usage: u, status: StatusBlocked, err: fmt.Errorf("genx: generate blocked: %s", refusal)}
}

func Error(u Usage, err error) *State {
	return &State{usage: u, status: StatusError, err: fmt.Errorf("genx: generate error: %w", err)}
}

func (s *State) Usage() Usage   { return s.usage }
func (s *State) Status() Status { return s.status }
func (s *State) Unwrap() error  { return s.err }
func (s *State) Error() string  { return s.err.Error() }

// IsEnd reports whether err marks the regular end of a stream, either
// ErrDone or a truncation.
func IsEnd(err error) bool {
	return errors.Is(err, ErrDone) || errors.Is(err, ErrTruncated)
}
