package gps

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaunagostinho/pitft-gps/internal/nmea"
)

func TestDemoCapture_AllFramesValid(t *testing.T) {
	p := NewReplay(demoCapture, 0, false)
	if len(p.lines) == 0 {
		t.Fatalf("empty demo capture")
	}
	r := NewFrameReader(p)
	n := 0
	for {
		line, err := r.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, err := nmea.Validate(line); err != nil {
			t.Fatalf("demo line %d %q: %v", n, line, err)
		}
		n++
	}
	if n != len(p.lines) {
		t.Fatalf("read %d of %d lines", n, len(p.lines))
	}
}

func TestOpenReplay_LoopsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.nmea")
	data := nmea.Append("GPRMC,,V,,,,,,,,,") + "\n\n" + nmea.Append("GPGGA,,,,,,0,00,,,M,,M,,") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := OpenReplay(ReplayConfig{Path: path, Loop: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r := NewFrameReader(p)
	var got []string
	for i := 0; i < 4; i++ {
		line, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		got = append(got, line)
	}
	if got[0] != got[2] || got[1] != got[3] || got[0] == got[1] {
		t.Fatalf("loop order wrong: %q", got)
	}

	p.Close()
	if _, err := p.Read(make([]byte, 8)); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("read after close: %v", err)
	}
}

func TestOpenReplay_MissingFile(t *testing.T) {
	if _, err := OpenReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("expected error")
	}
}
