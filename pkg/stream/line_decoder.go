package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrNullResponse is reported when the watch body is exhausted: the
// server has closed the stream, or sent a blank line where an event was
// expected.
var ErrNullResponse = errors.New("Null response from the server.")

// LineDecoder reads a newline-delimited stream one line at a time. Each
// successful Next returns the raw bytes of exactly one line, so the
// consumer never sees more than one event per pull.
type LineDecoder struct {
	body    io.ReadCloser
	r       *bufio.Reader
	partial []byte
	dead    bool
}

func NewLineDecoder(body io.ReadCloser) *LineDecoder {
	return &LineDecoder{
		body: body,
		r:    bufio.NewReader(body),
	}
}

// Next returns the next line of the stream with surrounding whitespace
// removed. End of stream, and blank lines, are reported as an I/O error
// wrapping [ErrNullResponse].
//
// A read deadline expiring passes through unchanged and keeps any
// partially read line for the following pull, so an idle timeout in the
// middle of an event does not corrupt the stream. Any other read error
// marks the decoder exhausted.
func (d *LineDecoder) Next() ([]byte, error) {
	chunk, err := d.r.ReadBytes('\n')
	if len(chunk) > 0 {
		d.partial = append(d.partial, chunk...)
	}

	if err != nil {
		if IsTimeout(err) {
			return nil, err
		}
		d.dead = true
		if err == io.EOF {
			// A final unterminated line is still an event.
			if line := bytes.TrimSpace(d.partial); len(line) > 0 {
				d.partial = nil
				return line, nil
			}
			return nil, fmt.Errorf("i/o error: %w", ErrNullResponse)
		}
		return nil, err
	}

	line := bytes.TrimSpace(d.partial)
	d.partial = nil
	if len(line) == 0 {
		return nil, fmt.Errorf("i/o error: %w", ErrNullResponse)
	}
	return line, nil
}

// Exhausted reports whether the stream has nothing buffered and the
// remote end has closed or failed. A fresh decoder is never exhausted;
// exhaustion is discovered by reading.
func (d *LineDecoder) Exhausted() bool {
	return d.dead && d.r.Buffered() == 0
}

func (d *LineDecoder) Close() error {
	d.dead = true
	return d.body.Close()
}
