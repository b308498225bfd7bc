package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVMIMEType is the content type of EncodeWAV output.
const WAVMIMEType = "audio/wav"

const wavHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("pcm: not a wav container")

// EncodeWAV wraps raw samples in a canonical 44-byte WAV header.
func EncodeWAV(f Format, data []byte) []byte {
	out := make([]byte, wavHeaderSize, wavHeaderSize+len(data))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(data)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels()))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate()))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.BytesRate()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(f.Channels()*f.Depth()/8))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.Depth()))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(data)))
	return append(out, data...)
}

// WAVInfo describes the stream found in a WAV container.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Depth      int
}

// DecodeWAV locates the fmt and data chunks of a 16-bit PCM WAV file and
// returns the stream description with the raw sample bytes.
func DecodeWAV(b []byte) (WAVInfo, []byte, error) {
	var info WAVInfo
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return info, nil, ErrNotWAV
	}
	rest := b[12:]
	haveFmt := false
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		body := rest[8:]
		if size > len(body) {
			size = len(body)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return info, nil, fmt.Errorf("pcm: short fmt chunk (%d bytes)", size)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return info, nil, fmt.Errorf("pcm: unsupported wav encoding %d", tag)
			}
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.Depth = int(binary.LittleEndian.Uint16(body[14:16]))
			if info.Depth != 16 {
				return info, nil, fmt.Errorf("pcm: unsupported bit depth %d", info.Depth)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, nil, errors.New("pcm: data chunk before fmt chunk")
			}
			return info, body[:size], nil
		}
		// chunks are word aligned
		adv := 8 + size + size%2
		if adv > len(rest) {
			break
		}
		rest = rest[adv:]
	}
	return info, nil, errors.New("pcm: wav data chunk not found")
}
