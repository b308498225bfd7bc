package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/socratchat/pkg/fallback"
)

var (
	// ErrRequestFailed wraps every failed completion request.
	ErrRequestFailed = errors.New("chat: request failed")
	// ErrMissingCredential means the chat backend has no API key.
	ErrMissingCredential = errors.New("chat: missing credential")
	// ErrBusy is returned while another turn is in flight.
	ErrBusy = errors.New("chat: turn in progress")
	// ErrEmptyMessage is returned for blank user text.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// Streamer is the remote language model. It calls onChunk for every text
// delta in arrival order and returns once the reply is complete. Errors
// caused by a missing API key wrap ErrMissingCredential.
type Streamer interface {
	StreamChatCompletion(ctx context.Context, text string, onChunk func(string)) error
}

// Status is the controller's request status.
type Status int

const (
	StatusReady Status = iota
	StatusSubmitted
	StatusStreaming
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusSubmitted:
		return "submitted"
	case StatusStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Controller owns the conversation history. It is safe for concurrent
// use; only one turn runs at a time.
type Controller struct {
	streamer Streamer
	rnd      func(n int) int
	newID    func() string
	observer func(Message)

	mu      sync.Mutex
	history []Message
	status  Status
}

// Option configures a Controller.
type Option func(*Controller)

// WithRandom sets the source used to pick a fallback reply.
func WithRandom(rnd func(n int) int) Option {
	return func(c *Controller) {
		c.rnd = rnd
	}
}

// WithIDFunc sets the message ID generator. Default UUIDv4.
func WithIDFunc(f func() string) Option {
	return func(c *Controller) {
		c.newID = f
	}
}

// WithObserver registers f to receive a copy of every message each time
// it is added or changed. f must not call back into the Controller.
func WithObserver(f func(Message)) Option {
	return func(c *Controller) {
		c.observer = f
	}
}

// NewController returns a Controller whose history holds the greeting.
func NewController(s Streamer, opts ...Option) *Controller {
	c := &Controller{
		streamer: s,
		rnd:      rand.IntN,
		newID:    uuid.NewString,
		history:  []Message{Welcome()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages returns a copy of the history.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Status returns the current request status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Clear resets the history to the greeting. A turn in flight keeps
// running but its reply is no longer recorded.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.history = []Message{Welcome()}
	c.mu.Unlock()
	c.notify(Welcome())
}

// SendTurn sends text and returns the final assistant reply. A blank reply
// is replaced by one of Fallbacks. On failure the reply becomes
// ApologyText and the error wraps ErrRequestFailed (and
// ErrMissingCredential when applicable). When ctx ends first the partial
// reply is kept and ctx's error returned.
func (c *Controller) SendTurn(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	c.mu.Lock()
	if c.status != StatusReady {
		c.mu.Unlock()
		return "", ErrBusy
	}
	user := Message{ID: c.newID(), Role: RoleUser, Content: text}
	reply := Message{ID: c.newID(), Role: RoleAssistant, IsStreaming: true}
	c.history = append(c.history, user, reply)
	c.status = StatusSubmitted
	c.mu.Unlock()
	c.notify(user)
	c.notify(reply)

	defer func() {
		c.mu.Lock()
		c.status = StatusReady
		c.mu.Unlock()
	}()

	c.setStatus(StatusStreaming)
	var content strings.Builder
	err := c.streamer.StreamChatCompletion(ctx, text, func(chunk string) {
		if chunk == "" {
			return
		}
		content.WriteString(chunk)
		c.update(reply.ID, func(m *Message) {
			if m.IsStreaming {
				m.Content += chunk
			}
		})
	})

	switch {
	case err != nil && ctx.Err() != nil:
		c.update(reply.ID, func(m *Message) { m.IsStreaming = false })
		return content.String(), ctx.Err()
	case err != nil:
		slog.Warn("chat: completion failed", "error", err)
		c.update(reply.ID, func(m *Message) {
			m.Content = ApologyText
			m.IsStreaming = false
		})
		return ApologyText, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	final := content.String()
	if strings.TrimSpace(final) == "" {
		final = fallback.Pick(Fallbacks, c.rnd)
		slog.Debug("chat: blank reply replaced", "fallback", final)
	}
	c.update(reply.ID, func(m *Message) {
		m.Content = final
		m.IsStreaming = false
	})
	return final, nil
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// update applies fn to the message with id, if it is still in the
// history, and notifies the observer.
func (c *Controller) update(id string, fn func(*Message)) {
	c.mu.Lock()
	i := slices.IndexFunc(c.history, func(m Message) bool { return m.ID == id })
	if i < 0 {
		c.mu.Unlock()
		return
	}
	fn(&c.history[i])
	m := c.history[i]
	c.mu.Unlock()
	c.notify(m)
}

func (c *Controller) notify(m Message) {
	if c.observer != nil {
		c.observer(m)
	}
}
