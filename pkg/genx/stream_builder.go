package genx

import (
	"fmt"

	"github.com/haivivi/socratchat/pkg/buffer"
)

// StreamEvent is what a StreamBuilder queues: either a chunk or a
// terminal status.
type StreamEvent struct {
	Chunk   *MessageChunk
	Status  Status
	Usage   Usage
	Refusal string
	Error   error
}

// StreamBuilder is the producer side of a Stream. Provider pullers feed
// it from a goroutine while the consumer reads Stream().
type StreamBuilder struct {
	bb *buffer.BlockBuffer[*StreamEvent]
}

// NewStreamBuilder returns a builder queueing up to size events.
func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{bb: buffer.BlockN[*StreamEvent](size)}
}

func (sb *StreamBuilder) finish(evt *StreamEvent) error {
	if err := sb.bb.Add(evt); err != nil {
		return err
	}
	return sb.bb.CloseWrite()
}

func (sb *StreamBuilder) Done(u Usage) error {
	return sb.finish(&StreamEvent{Status: StatusDone, Usage: u})
}

func (sb *StreamBuilder) Truncated(u Usage) error {
	return sb.finish(&StreamEvent{Status: StatusTruncated, Usage: u})
}

func (sb *StreamBuilder) Blocked(u Usage, refusal string) error {
	return sb.finish(&StreamEvent{Status: StatusBlocked, Usage: u, Refusal: refusal})
}

func (sb *StreamBuilder) Unexpected(u Usage, err error) error {
	return sb.finish(&StreamEvent{Status: StatusError, Usage: u, Error: err})
}

// Add queues chunks, blocking while the consumer lags.
func (sb *StreamBuilder) Add(chunks ...*MessageChunk) error {
	for _, c := range chunks {
		if err := sb.bb.Add(&StreamEvent{Chunk: c}); err != nil {
			return err
		}
	}
	return nil
}

// Abort fails the stream with err.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.bb.CloseWithError(err)
}

func (sb *StreamBuilder) Stream() Stream {
	return (*builtStream)(sb)
}

type builtStream StreamBuilder

func (s *builtStream) Next() (*MessageChunk, error) {
	evt, err := s.bb.Next()
	if err != nil {
		return nil, err
	}
	switch evt.Status {
	case StatusOK:
		return evt.Chunk, nil
	case StatusDone:
		err = Done(evt.Usage)
	case StatusTruncated:
		err = Truncated(evt.Usage)
	case StatusBlocked:
		err = Blocked(evt.Usage, evt.Refusal)
	case StatusError:
		err = Error(evt.Usage, evt.Error)
	default:
		err = fmt.Errorf("genx: unexpected stream status: %v", evt.Status)
	}
	s.bb.CloseWithError(err)
	return nil, err
}

func (s *builtStream) Close() error { return s.bb.Close() }

func (s *builtStream) CloseWithError(err error) error { return s.bb.CloseWithError(err) }
