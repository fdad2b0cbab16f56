package gps

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shaunagostinho/pitft-gps/internal/nmea"
)

// SatelliteSlot is one entry of the published satellites-in-view table.
type SatelliteSlot struct {
	PRN       string  `json:"prn"`
	Elevation float64 `json:"elevation"` // radians
	Azimuth   float64 `json:"azimuth"`   // radians from true north
	SNR       int     `json:"snr"`       // 0-99, 0 = not tracking
}

// Tracking reports whether the receiver currently has a signal from this satellite.
func (s SatelliteSlot) Tracking() bool { return s.SNR > 0 }

// Number returns the PRN as an integer, or -1 when it is not numeric.
func (s SatelliteSlot) Number() int {
	n, err := strconv.Atoi(s.PRN)
	if err != nil {
		return -1
	}
	return n
}

// satelliteAssembler builds a table from the 1..N messages of one GSV group.
// A table is only handed out once the final message arrives and the group was
// seen in order from message 1; anything else is dropped.
type satelliteAssembler struct {
	active bool
	total  int
	inView int
	next   int // expected index of the next message
	slots  []SatelliteSlot
}

// add feeds one decoded GSV message. It returns the finished table when the
// message completes a consistent group. A non-nil error means an in-progress
// group was thrown away.
func (a *satelliteAssembler) add(m nmea.GSV) ([]SatelliteSlot, bool, error) {
	if m.Index == 1 {
		var err error
		if a.active {
			err = fmt.Errorf("gsv group restarted at message %d of %d", a.next, a.total)
		}
		a.active = true
		a.total = m.Total
		a.inView = m.InView
		a.next = 1
		a.slots = a.slots[:0]
		return a.accept(m, err)
	}

	if !a.active {
		return nil, false, nil
	}
	if m.Index != a.next || m.Total != a.total {
		err := fmt.Errorf("gsv message %d/%d out of sequence (want %d/%d)", m.Index, m.Total, a.next, a.total)
		a.reset()
		return nil, false, err
	}
	return a.accept(m, nil)
}

func (a *satelliteAssembler) accept(m nmea.GSV, prior error) ([]SatelliteSlot, bool, error) {
	for _, sv := range m.Satellites {
		a.slots = append(a.slots, SatelliteSlot{
			PRN:       sv.PRN,
			Elevation: radians(float64(sv.Elevation)),
			Azimuth:   radians(float64(sv.Azimuth)),
			SNR:       sv.SNR,
		})
	}
	a.next++
	if m.Index < a.total {
		return nil, false, prior
	}

	want := a.inView
	if limit := a.total * nmea.MaxSatellitesPerGSV; want > limit {
		want = limit
	}
	if len(a.slots) != want {
		err := fmt.Errorf("gsv group has %d satellites, announced %d", len(a.slots), want)
		a.reset()
		return nil, false, err
	}
	table := make([]SatelliteSlot, len(a.slots))
	copy(table, a.slots)
	a.reset()
	return table, true, prior
}

func (a *satelliteAssembler) reset() {
	a.active = false
	a.total = 0
	a.inView = 0
	a.next = 0
	a.slots = a.slots[:0]
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
