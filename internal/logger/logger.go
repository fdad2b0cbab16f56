// Package logger writes receiver snapshots to rotating CSV track files.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
)

const (
	defaultDir      = "/var/log/pitftgps"
	minInterval     = 50 * time.Millisecond
	maxRowsPerTrack = 100_000 // ~28 hrs at 1 Hz
)

// Config holds logger configuration.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
}

type column struct {
	name  string
	value func(gps.Snapshot) string
}

func oneDecimal(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func degrees(rad float64) string {
	return strconv.FormatFloat(rad*180/math.Pi, 'f', 6, 64)
}

// columns after the leading local timestamp.
var columns = []column{
	{"gps_time", func(s gps.Snapshot) string {
		if s.Fix.Timestamp.IsZero() {
			return ""
		}
		return s.Fix.Timestamp.Format(time.RFC3339)
	}},
	{"status", func(s gps.Snapshot) string { return s.Fix.Status.String() }},
	{"validity", func(s gps.Snapshot) string { return s.Fix.Validity }},
	{"quality", func(s gps.Snapshot) string { return strconv.Itoa(s.Fix.Quality) }},
	{"sats_in_use", func(s gps.Snapshot) string { return strconv.Itoa(s.Fix.Satellites) }},
	{"sats_tracked", func(s gps.Snapshot) string { return strconv.Itoa(s.Tracking()) }},
	{"sats_visible", func(s gps.Snapshot) string { return strconv.Itoa(len(s.Satellites)) }},
	{"hdop", func(s gps.Snapshot) string { return oneDecimal(s.Fix.HDOP) }},
	{"avg_lat", func(s gps.Snapshot) string { return degrees(s.AvgLatitude) }},
	{"avg_lon", func(s gps.Snapshot) string { return degrees(s.AvgLongitude) }},
	{"raw_lat", func(s gps.Snapshot) string { return degrees(s.Fix.Latitude) }},
	{"raw_lon", func(s gps.Snapshot) string { return degrees(s.Fix.Longitude) }},
	{"alt_m", func(s gps.Snapshot) string { return oneDecimal(s.Fix.Altitude) }},
	{"geoid_m", func(s gps.Snapshot) string { return oneDecimal(s.Fix.GeoidSep) }},
	{"speed_kn", func(s gps.Snapshot) string { return oneDecimal(s.Fix.Speed) }},
	{"course_deg", func(s gps.Snapshot) string { return oneDecimal(s.Fix.Course) }},
	{"magvar_deg", func(s gps.Snapshot) string { return oneDecimal(s.Fix.MagVar) }},
	{"drift_m", func(s gps.Snapshot) string { return oneDecimal(s.DriftMeters()) }},
}

func header() []string {
	h := make([]string, 0, len(columns)+1)
	h = append(h, "timestamp")
	for _, c := range columns {
		h = append(h, c.name)
	}
	return h
}

func row(at time.Time, s gps.Snapshot) []string {
	r := make([]string, 0, len(columns)+1)
	r = append(r, at.Format(time.RFC3339Nano))
	for _, c := range columns {
		r = append(r, c.value(s))
	}
	return r
}

// track is one open CSV file.
type track struct {
	f    *os.File
	w    *csv.Writer
	rows int
}

func openTrack(dir string, at time.Time) (*track, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "track_"+at.Format("2006-01-02_150405.000")+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	t := &track{f: f, w: csv.NewWriter(f)}
	if err := t.write(header()); err != nil {
		t.close()
		return nil, err
	}
	log.Printf("[logger] opened %s", path)
	return t, nil
}

func (t *track) write(rec []string) error {
	if err := t.w.Write(rec); err != nil {
		return err
	}
	t.w.Flush()
	return t.w.Error()
}

func (t *track) close() {
	t.w.Flush()
	t.f.Close()
}

// Logger records snapshots no more often than its interval. Snapshots from
// before the first fix are skipped.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	last     time.Time
	cur      *track
}

func New(cfg Config) *Logger {
	l := &Logger{dir: cfg.Path, enabled: cfg.Enabled, interval: time.Duration(cfg.IntervalMs) * time.Millisecond}
	if l.dir == "" {
		l.dir = defaultDir
	}
	if l.interval < minInterval {
		l.interval = time.Second
	}
	return l
}

// SetEnabled toggles logging at runtime. Disabling closes the current track.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on {
		l.closeTrack()
	}
}

func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *Logger) Record(snap gps.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || snap.FixUpdated.IsZero() {
		return
	}
	now := time.Now()
	if now.Sub(l.last) < l.interval {
		return
	}
	l.last = now

	if l.cur == nil || l.cur.rows >= maxRowsPerTrack {
		l.closeTrack()
		t, err := openTrack(l.dir, now)
		if err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
		l.cur = t
	}
	if err := l.cur.write(row(now, snap)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.cur.rows++
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeTrack()
}

func (l *Logger) closeTrack() {
	if l.cur != nil {
		l.cur.close()
		l.cur = nil
	}
}
