// Package capture records microphone audio for one turn at a time.
//
// A Unit owns the microphone. Start opens a Session which pumps PCM from
// the device into a recording buffer and a short analysis window used by
// voice activity detection. Stop finalizes the recording and encodes it
// with the first available encoder from a preference list; Abort
// discards it. Only one Session may be open per Unit.
package capture
