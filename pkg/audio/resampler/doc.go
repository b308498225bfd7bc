// Package resampler converts 16-bit PCM between sample rates and between
// mono and stereo. Rate conversion runs on go-audio-resampling.
//
//	src := resampler.Format{SampleRate: 44100, Stereo: true}
//	dst := resampler.Format{SampleRate: 24000}
//	r, err := resampler.New(decoded, src, dst)
//	io.Copy(speaker, r)
package resampler
