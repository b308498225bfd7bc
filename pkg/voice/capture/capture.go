package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/haivivi/socratchat/pkg/audio/pcm"
)

var (
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	// ErrDevice covers every other failure to open or read the device.
	ErrDevice = errors.New("capture: microphone device error")
	// ErrBusy is returned by Start while a session is still open.
	ErrBusy = errors.New("capture: capture already in progress")
	// ErrAborted is returned by Stop on a session that was aborted.
	ErrAborted = errors.New("capture: session aborted")
)

// Stream is an open microphone delivering little-endian s16 mono PCM.
type Stream interface {
	io.ReadCloser
	Format() pcm.Format
}

// Microphone opens capture streams. Implementations wrap failures with
// ErrPermissionDenied or ErrDevice.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// Recording is the encoded audio of a finished session.
type Recording struct {
	MIMEType string
	Data     []byte
	Format   pcm.Format
	Duration time.Duration
}

// Len returns the encoded size in bytes.
func (r *Recording) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

const frameDuration = 20 * time.Millisecond
