// Package wsbridge exposes a voice session to browser or terminal UIs over
// a websocket.
//
// Every frame is one JSON object with a "type" field. On connect the
// server sends a "hello" frame with the client ID, the session snapshot
// and the chat history. After that it pushes:
//
//	state     {"type":"state","state":{...}}
//	advisory  {"type":"advisory","text":"...","state":{...}}
//	draft     {"type":"draft","text":"..."}
//	message   {"type":"message","message":{...}}
//	messages  {"type":"messages","messages":[...]}
//	reply     {"type":"reply","text":"..."}
//	error     {"type":"error","code":"...","text":"..."}
//
// Clients send commands:
//
//	{"type":"enter_handsfree"}
//	{"type":"exit_handsfree"}
//	{"type":"toggle_voice"}
//	{"type":"start_recording"}
//	{"type":"stop_recording"}
//	{"type":"send_text","text":"..."}
//	{"type":"speak_replies","on":true}
//	{"type":"clear"}
package wsbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

// Frame types sent by the server.
const (
	FrameHello    = "hello"
	FrameState    = "state"
	FrameAdvisory = "advisory"
	FrameDraft    = "draft"
	FrameMessage  = "message"
	FrameMessages = "messages"
	FrameReply    = "reply"
	FrameError    = "error"
)

// Command types accepted from clients.
const (
	CmdEnterHandsFree = "enter_handsfree"
	CmdExitHandsFree  = "exit_handsfree"
	CmdToggleVoice    = "toggle_voice"
	CmdStartRecording = "start_recording"
	CmdStopRecording  = "stop_recording"
	CmdSendText       = "send_text"
	CmdSpeakReplies   = "speak_replies"
	CmdClear          = "clear"
)

// ErrBadCommand is returned for frames that are not valid commands.
var ErrBadCommand = errors.New("wsbridge: bad command")

// Frame is a server to client message.
type Frame struct {
	Type     string              `json:"type"`
	ClientID string              `json:"client_id,omitempty"`
	State    *voicechat.Snapshot `json:"state,omitempty"`
	Text     string              `json:"text,omitempty"`
	Code     string              `json:"code,omitempty"`
	Message  *chat.Message       `json:"message,omitempty"`
	Messages []chat.Message      `json:"messages,omitempty"`
}

// Command is a client to server message.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	On   *bool  `json:"on,omitempty"`
}

// DecodeCommand parses and validates one client frame.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	switch cmd.Type {
	case CmdEnterHandsFree, CmdExitHandsFree, CmdToggleVoice,
		CmdStartRecording, CmdStopRecording, CmdClear:
	case CmdSendText:
		if strings.TrimSpace(cmd.Text) == "" {
			return Command{}, fmt.Errorf("%w: send_text needs text", ErrBadCommand)
		}
	case CmdSpeakReplies:
		if cmd.On == nil {
			return Command{}, fmt.Errorf("%w: speak_replies needs on", ErrBadCommand)
		}
	case "":
		return Command{}, fmt.Errorf("%w: missing type", ErrBadCommand)
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrBadCommand, cmd.Type)
	}
	return cmd, nil
}

// EventFrame converts a session event to its frame.
func EventFrame(ev voicechat.Event) Frame {
	state := ev.State
	switch ev.Kind {
	case voicechat.EventAdvisory:
		return Frame{Type: FrameAdvisory, Text: ev.Text, State: &state}
	case voicechat.EventDraft:
		return Frame{Type: FrameDraft, Text: ev.Text}
	default:
		return Frame{Type: FrameState, State: &state}
	}
}

// errorCode names err for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadCommand):
		return "bad_command"
	case errors.Is(err, voicechat.ErrHandsFree):
		return "hands_free"
	case errors.Is(err, voicechat.ErrBusy), errors.Is(err, chat.ErrBusy):
		return "busy"
	case errors.Is(err, voicechat.ErrClosed):
		return "closed"
	case errors.Is(err, chat.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, chat.ErrRequestFailed):
		return "request_failed"
	default:
		return "internal"
	}
}
