package resampler

import "io"

// frameReader returns only whole frames from r, holding back any partial
// trailing frame until the rest arrives.
type frameReader struct {
	r     io.Reader
	size  int
	carry []byte
}

func newFrameReader(r io.Reader, size int) *frameReader {
	return &frameReader{r: r, size: size}
}

func (fr *frameReader) Read(p []byte) (int, error) {
	if len(p) < fr.size {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/fr.size*fr.size]
	n := copy(p, fr.carry)
	fr.carry = fr.carry[:0]

	rn, err := fr.r.Read(p[n:])
	n += rn
	if rem := n % fr.size; rem != 0 {
		if err == io.EOF {
			// a dangling half frame at the end of the stream is dropped
			return n - rem, io.EOF
		}
		fr.carry = append(fr.carry, p[n-rem:n]...)
		n -= rem
	}
	return n, err
}
