// Package pcm describes the signed 16-bit little-endian mono audio the
// voice pipeline records and plays, and converts it to and from WAV
// containers and float samples.
package pcm
