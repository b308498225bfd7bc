// Package buffer provides the two concurrent buffers the voice pipeline
// is built on.
//
//   - BlockBuffer is a bounded FIFO. Writers block when it is full and
//     readers block when it is empty. Streams of LLM chunks use it.
//   - RingBuffer keeps only the most recent N elements. The capture unit
//     uses it as the analysis window behind the level meter.
//
// Both are safe for concurrent use and support CloseWrite (drain then EOF)
// and CloseWithError (fail every pending and future call).
package buffer
