package resampler

// Format is a 16-bit signed little-endian PCM layout.
type Format struct {
	SampleRate int
	Stereo     bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// frameBytes is the size of one sample across all channels.
func (f Format) frameBytes() int { return 2 * f.channels() }
