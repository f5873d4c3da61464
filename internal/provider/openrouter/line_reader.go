package openrouter

import (
	"bytes"
	"io"
)

// LineReader yields complete newline-terminated lines from a byte stream,
// retaining any trailing partial line across reads. The final unterminated
// line, if any, is returned before io.EOF.
type LineReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	eof   bool
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:     r,
		buf:   make([]byte, 0, 4096),
		chunk: make([]byte, 4096),
	}
}

// ReadLine returns the next complete line without its newline (a trailing
// \r is also stripped). It returns io.EOF once the stream is exhausted.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(lr.buf, '\n'); i >= 0 {
			line := lr.buf[:i]
			lr.buf = lr.buf[i+1:]
			return string(bytes.TrimSuffix(line, []byte{'\r'})), nil
		}

		if lr.eof {
			if len(lr.buf) > 0 {
				line := string(bytes.TrimSuffix(lr.buf, []byte{'\r'}))
				lr.buf = lr.buf[:0]
				return line, nil
			}
			return "", io.EOF
		}

		n, err := lr.r.Read(lr.chunk)
		if n > 0 {
			lr.buf = append(lr.buf, lr.chunk[:n]...)
		}
		if err == io.EOF {
			lr.eof = true
			continue
		}
		if err != nil {
			return "", err
		}
	}
}
