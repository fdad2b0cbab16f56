package gps

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tevino/abool/v2"
	"go.uber.org/ratelimit"
)

// demoCapture is a short recording of a receiver acquiring a fix, used by
// the demo source.
//
//go:embed demo.nmea
var demoCapture []byte

// ReplayConfig describes a recorded NMEA source.
type ReplayConfig struct {
	Path string
	Rate int // lines per second, 0 = as fast as the reader asks
	Loop bool
}

// ReplayPort plays back recorded lines as if they came from a serial port,
// one line per Read.
type ReplayPort struct {
	lines   [][]byte
	pos     int
	pending []byte
	loop    bool
	rl      ratelimit.Limiter
	closed  *abool.AtomicBool
}

// NewReplay splits data into lines. Blank lines are dropped and each line is
// re-terminated with CRLF.
func NewReplay(data []byte, rate int, loop bool) *ReplayPort {
	p := &ReplayPort{loop: loop, closed: abool.New()}
	for _, l := range bytes.Split(data, []byte("\n")) {
		l = bytes.TrimRight(l, "\r")
		if len(l) == 0 {
			continue
		}
		line := make([]byte, 0, len(l)+2)
		p.lines = append(p.lines, append(append(line, l...), '\r', '\n'))
	}
	if rate > 0 {
		p.rl = ratelimit.New(rate)
	} else {
		p.rl = ratelimit.NewUnlimited()
	}
	return p
}

// OpenReplay loads a recorded log from disk.
func OpenReplay(cfg ReplayConfig) (*ReplayPort, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("gps: replay %s: %w", cfg.Path, err)
	}
	p := NewReplay(data, cfg.Rate, cfg.Loop)
	log.Printf("[gps] replaying %d lines from %s at %d/s", len(p.lines), cfg.Path, cfg.Rate)
	return p, nil
}

// Demo replays the built-in capture forever at a receiver-like pace.
func Demo() *ReplayPort {
	return NewReplay(demoCapture, 5, true)
}

func (p *ReplayPort) Read(b []byte) (int, error) {
	if p.closed.IsSet() {
		return 0, os.ErrClosed
	}
	if len(p.pending) == 0 {
		if p.pos >= len(p.lines) {
			if !p.loop || len(p.lines) == 0 {
				return 0, io.EOF
			}
			p.pos = 0
		}
		p.rl.Take()
		p.pending = p.lines[p.pos]
		p.pos++
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *ReplayPort) Close() error {
	p.closed.Set()
	return nil
}
