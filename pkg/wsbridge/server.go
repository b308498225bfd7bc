package wsbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

// Session is the part of voicechat.Session the bridge drives.
type Session interface {
	State() voicechat.Snapshot
	EnterHandsFree() error
	ExitHandsFree() error
	ToggleVoiceChat() (bool, error)
	StartRecording() error
	StopRecording() error
	SendText(ctx context.Context, text string) (string, error)
	SetSpeakReplies(on bool) error
}

var _ Session = (*voicechat.Session)(nil)

// History is the chat log shown to clients.
type History interface {
	Messages() []chat.Message
	Clear()
}

var _ History = (*chat.Controller)(nil)

// Server upgrades HTTP requests to websocket clients and fans session
// events out to all of them. Set Session and History before serving;
// wire PublishEvent and PublishMessage as the session and chat observers.
type Server struct {
	Session Session
	History History

	// SendBuffer is the per-client outbound queue length. A client whose
	// queue is full is disconnected. Default 64.
	SendBuffer int
	// PingInterval defaults to 20s.
	PingInterval time.Duration
	// WriteTimeout defaults to 5s.
	WriteTimeout time.Duration
	// MaxMessageBytes limits inbound frames. Default 64 KiB.
	MaxMessageBytes int64

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Frame
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// PublishEvent broadcasts a session event.
func (s *Server) PublishEvent(ev voicechat.Event) {
	s.broadcast(EventFrame(ev))
}

// PublishMessage broadcasts a chat message update.
func (s *Server) PublishMessage(m chat.Message) {
	s.broadcast(Frame{Type: FrameMessage, Message: &m})
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Wait blocks until every command started by a client has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("wsbridge: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(orDefault(s.MaxMessageBytes, 64<<10))

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Frame, orDefault(s.SendBuffer, 64)),
		done: make(chan struct{}),
	}
	state := s.Session.State()
	c.send <- Frame{Type: FrameHello, ClientID: c.id, State: &state, Messages: s.History.Messages()}
	s.register(c)
	defer s.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := s.writeLoop(ctx, c); err != nil {
			slog.Debug("wsbridge: write failed", "client", c.id, "error", err)
		}
		c.close()
		conn.Close()
	}()

	slog.Info("wsbridge: client connected", "client", c.id, "remote", r.RemoteAddr)
	s.readLoop(ctx, c)
	c.close()
	<-writerDone
	slog.Info("wsbridge: client disconnected", "client", c.id)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("wsbridge: read failed", "client", c.id, "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			s.reply(c, errorFrame(ErrBadCommand))
			continue
		}
		cmd, err := DecodeCommand(data)
		if err != nil {
			s.reply(c, errorFrame(err))
			continue
		}
		s.dispatch(ctx, c, cmd)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, cmd Command) {
	slog.Debug("wsbridge: command", "client", c.id, "type", cmd.Type)
	var err error
	switch cmd.Type {
	case CmdEnterHandsFree:
		err = s.Session.EnterHandsFree()
	case CmdExitHandsFree:
		err = s.Session.ExitHandsFree()
	case CmdToggleVoice:
		_, err = s.Session.ToggleVoiceChat()
	case CmdStartRecording:
		err = s.Session.StartRecording()
	case CmdStopRecording:
		err = s.Session.StopRecording()
	case CmdSpeakReplies:
		err = s.Session.SetSpeakReplies(*cmd.On)
	case CmdClear:
		s.History.Clear()
		s.broadcast(Frame{Type: FrameMessages, Messages: s.History.Messages()})
	case CmdSendText:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reply, err := s.Session.SendText(ctx, cmd.Text)
			if err != nil && reply == "" {
				s.reply(c, errorFrame(err))
				return
			}
			s.reply(c, Frame{Type: FrameReply, Text: reply})
		}()
	}
	if err != nil {
		s.reply(c, errorFrame(err))
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) error {
	ping := time.NewTicker(orDefault(s.PingInterval, 20*time.Second))
	defer ping.Stop()
	timeout := orDefault(s.WriteTimeout, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			deadline := time.Now().Add(timeout)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(timeout)); err != nil {
				return err
			}
		case f := <-c.send:
			data, err := json.Marshal(f)
			if err != nil {
				slog.Warn("wsbridge: encode frame", "type", f.Type, "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients == nil {
		s.clients = make(map[string]*client)
	}
	s.clients[c.id] = c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

func (s *Server) broadcast(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		s.enqueue(c, f)
	}
}

func (s *Server) reply(c *client, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(c, f)
}

// enqueue drops c when its queue is full. s.mu must be held.
func (s *Server) enqueue(c *client, f Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
		slog.Warn("wsbridge: client too slow, dropping", "client", c.id)
		delete(s.clients, c.id)
		c.close()
	}
}

func errorFrame(err error) Frame {
	return Frame{Type: FrameError, Code: errorCode(err), Text: err.Error()}
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
