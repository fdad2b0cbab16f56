package gps

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
)

// maxFrameLen bounds a line without LF. NMEA caps sentences at 82 bytes, so
// anything this long is line noise.
const maxFrameLen = 4096

// FrameReader splits a serial byte stream into LF-terminated lines.
type FrameReader struct {
	r   io.Reader
	buf []byte // bytes read but not yet returned
	tmp []byte

	overflow bool // discarding until the next LF
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, tmp: make([]byte, 512)}
}

// ReadFrame returns the next line with CR/LF trimmed. It issues at most one
// Read on the source, so it returns ("", nil) whenever that read timed out or
// left no complete line. Callers treat that as "no data yet" and get a chance
// to re-check for cancellation. Any other read failure is returned wrapped.
func (f *FrameReader) ReadFrame() (string, error) {
	if line, ok := f.take(); ok {
		return line, nil
	}

	n, err := f.r.Read(f.tmp)
	if n > 0 {
		f.buf = append(f.buf, f.tmp[:n]...)
		if len(f.buf) > maxFrameLen && bytes.IndexByte(f.buf, '\n') < 0 {
			log.Printf("[gps] dropping %d bytes without line feed", len(f.buf))
			f.buf = f.buf[:0]
			f.overflow = true
		}
	}
	if err != nil && !isTimeout(err) {
		if line, ok := f.take(); ok {
			return line, nil // the error repeats on the next read
		}
		return "", fmt.Errorf("gps: read: %w", err)
	}
	// timeouts land here too; go.bug.st/serial reports them as 0, nil
	line, _ := f.take()
	return line, nil
}

// take pops one complete line off the buffer.
func (f *FrameReader) take() (string, bool) {
	i := bytes.IndexByte(f.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := f.buf[:i]
	rest := f.buf[i+1:]
	skip := f.overflow
	f.overflow = false

	out := string(bytes.TrimRight(line, "\r"))
	f.buf = append(f.buf[:0], rest...)
	if skip {
		return f.take()
	}
	return out, true
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
