package gps

import (
	"fmt"
	"sync"
	"time"

	"github.com/shaunagostinho/pitft-gps/internal/nmea"
)

// Status summarises fix quality from the GGA quality code and the RMC
// validity flag.
type Status int

const (
	StatusNoFix Status = iota
	StatusAutonomous
	StatusDifferential
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusAutonomous:
		return "autonomous"
	case StatusDifferential:
		return "differential"
	case StatusInvalid:
		return "invalid"
	default:
		return "nofix"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusNoFix, StatusAutonomous, StatusDifferential, StatusInvalid} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("gps: unknown status %q", b)
}

func deriveStatus(validity string, quality int) Status {
	switch {
	case quality == 2:
		return StatusDifferential
	case quality > 0:
		return StatusAutonomous
	case validity == "A":
		return StatusAutonomous
	case validity == "V":
		return StatusInvalid
	}
	return StatusNoFix
}

// Fix is the most recent position-and-quality picture.
type Fix struct {
	Status     Status    `json:"status"`
	Validity   string    `json:"validity"`   // last RMC flag, "" before the first RMC
	Quality    int       `json:"quality"`    // last GGA quality code
	Satellites int       `json:"satellites"` // in use
	Latitude   float64   `json:"latitude"`   // radians, RMC
	Longitude  float64   `json:"longitude"`  // radians, RMC
	Altitude   float64   `json:"altitude"`   // meters above MSL
	GeoidSep   float64   `json:"geoidSep"`   // meters
	HDOP       float64   `json:"hdop"`
	Speed      float64   `json:"speed"`     // knots
	Course     float64   `json:"course"`    // degrees true
	MagVar     float64   `json:"magVar"`    // degrees, west negative
	Timestamp  time.Time `json:"timestamp"` // receiver time, zero until an RMC carries a date
}

// Snapshot is a consistent copy of the receiver state handed to consumers.
type Snapshot struct {
	Fix          Fix             `json:"fix"`
	AvgLatitude  float64         `json:"avgLatitude"`  // radians, smoothed over WindowSize fixes
	AvgLongitude float64         `json:"avgLongitude"` // radians
	Satellites   []SatelliteSlot `json:"satellites"`
	InView       int             `json:"inView"`
	FixUpdated   time.Time       `json:"fixUpdated"`  // local clock, last GGA/RMC applied
	SatsUpdated  time.Time       `json:"satsUpdated"` // local clock, last table published
}

// Tracking counts satellites with a non-zero SNR.
func (s Snapshot) Tracking() int {
	n := 0
	for _, sat := range s.Satellites {
		if sat.Tracking() {
			n++
		}
	}
	return n
}

// Age is how long ago the fix was last updated. The local receive clock is
// used because the Pi has no RTC and its wall clock may be unset.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.FixUpdated.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.FixUpdated)
}

// Stale reports whether the fix is older than threshold.
func (s Snapshot) Stale(now time.Time, threshold time.Duration) bool {
	return s.Age(now) > threshold
}

// State is the receiver aggregate shared between the acquisition loop (the
// only writer) and any number of readers. One mutex guards all of it so a
// reader never sees half of a sentence applied.
type State struct {
	mu sync.Mutex

	fix         Fix
	window      PositionWindow
	sats        []SatelliteSlot
	inView      int
	fixUpdated  time.Time
	satsUpdated time.Time
	date        string // ddmmyy of the last RMC that carried one

	zone *time.Location
	now  func() time.Time
}

// NewState returns a zeroed state. Receiver timestamps are presented in zone.
func NewState(zone *time.Location) *State {
	if zone == nil {
		zone = time.UTC
	}
	return &State{zone: zone, now: time.Now}
}

func (s *State) applyGGA(g nmea.GGA) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fix.Quality = g.Quality
	s.fix.Satellites = g.Satellites
	if g.Quality > 0 {
		s.window.Push(g.Latitude, g.Longitude)
		s.fix.Altitude = g.Altitude
		s.fix.GeoidSep = g.GeoidSep
		s.fix.HDOP = g.HDOP
	}
	if ts, ok := s.ggaTime(g.TimeOfDay); ok {
		s.fix.Timestamp = ts
	}
	s.fix.Status = deriveStatus(s.fix.Validity, s.fix.Quality)
	s.fixUpdated = s.now()
}

func (s *State) applyRMC(m nmea.RMC) {
	var ts time.Time
	if t, ok := m.Time(); ok {
		ts = t.In(s.zone)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.IsZero() {
		s.date = ""
	} else {
		s.date = m.Date
	}
	s.fix.Validity = m.Validity
	s.fix.Latitude = radians(m.Latitude)
	s.fix.Longitude = radians(m.Longitude)
	s.fix.Speed = m.Speed
	s.fix.Course = m.Course
	s.fix.MagVar = m.MagVar
	s.fix.Timestamp = ts
	s.fix.Status = deriveStatus(s.fix.Validity, s.fix.Quality)
	s.fixUpdated = s.now()
}

// ggaTime dates a GGA time of day with the last RMC date. A time of day well
// behind the current timestamp means midnight passed since that RMC.
// Called with s.mu held.
func (s *State) ggaTime(timeOfDay string) (time.Time, bool) {
	t, ok := nmea.Stamp(s.date, timeOfDay)
	if !ok {
		return time.Time{}, false
	}
	t = t.In(s.zone)
	if !s.fix.Timestamp.IsZero() && s.fix.Timestamp.Sub(t) > 12*time.Hour {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

func (s *State) publishSatellites(table []SatelliteSlot, inView int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sats = table
	s.inView = inView
	s.satsUpdated = s.now()
}

// Snapshot copies the current state. The lock is held only for the copy.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lat, lon := s.window.Average()
	out := Snapshot{
		Fix:          s.fix,
		AvgLatitude:  radians(lat),
		AvgLongitude: radians(lon),
		InView:       s.inView,
		FixUpdated:   s.fixUpdated,
		SatsUpdated:  s.satsUpdated,
	}
	if s.sats != nil {
		out.Satellites = make([]SatelliteSlot, len(s.sats))
		copy(out.Satellites, s.sats)
	}
	return out
}
