package server

import (
	"math"
	"time"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
)

// DisplayData is what the status screen draws once per refresh.
type DisplayData struct {
	Time        string     `json:"time"` // receiver clock, local zone
	Date        string     `json:"date"`
	Zone        string     `json:"zone"`
	Status      gps.Status `json:"status"`
	Validity    string     `json:"validity"`
	Quality     int        `json:"quality"`
	Tracked     int        `json:"tracked"` // satellites with signal
	Visible     int        `json:"visible"` // satellites in the table
	InUse       int        `json:"inUse"`
	HDOP        float64    `json:"hdop"`
	Altitude    float64    `json:"altitude"` // display units
	Speed       float64    `json:"speed"`    // display units
	Course      float64    `json:"course"`
	HasPosition bool       `json:"hasPosition"`
	Latitude    float64    `json:"latitude"`  // decimal degrees
	Longitude   float64    `json:"longitude"` // decimal degrees
	DriftM      float64    `json:"driftM"`
	Stale       bool       `json:"stale"`
	AgeMs       int64      `json:"ageMs"` // -1 before the first fix
	Sky         []SkyPoint `json:"sky"`
}

// SkyPoint is one satellite placed on the sky plot.
type SkyPoint struct {
	PRN    string  `json:"prn"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Size   int     `json:"size"`   // marker radius, SNR with a floor
	Signal string  `json:"signal"` // "none", "weak" or "good"
	SNR    int     `json:"snr"`
	ElevD  float64 `json:"elev"`
	AzD    float64 `json:"az"`
}

const minMarkerSize = 9

// SkyXY projects elevation and azimuth (radians) onto the plot: zenith at
// the centre, horizon on the rim, north up and east right.
func SkyXY(sky SkyConfig, elevation, azimuth float64) (int, int) {
	r := (math.Pi/2 - elevation) / (math.Pi / 2)
	x := sky.CenterX + r*math.Sin(azimuth)*sky.Radius
	y := sky.CenterY - r*math.Cos(azimuth)*sky.Radius
	return int(x), int(y)
}

func signalClass(snr int) string {
	switch {
	case snr < 5:
		return "none"
	case snr < 20:
		return "weak"
	}
	return "good"
}

// BuildDisplay turns a receiver snapshot into a display frame.
func BuildDisplay(snap gps.Snapshot, cfg DisplayConfig, now time.Time) *DisplayData {
	d := &DisplayData{
		Status:   snap.Fix.Status,
		Validity: snap.Fix.Validity,
		Quality:  snap.Fix.Quality,
		Tracked:  snap.Tracking(),
		Visible:  len(snap.Satellites),
		InUse:    snap.Fix.Satellites,
		HDOP:     snap.Fix.HDOP,
		Altitude: convertAltitude(snap.Fix.Altitude, cfg.Units.Altitude),
		Speed:    convertSpeed(snap.Fix.Speed, cfg.Units.Speed),
		Course:   snap.Fix.Course,
		DriftM:   snap.DriftMeters(),
		Stale:    snap.Stale(now, time.Duration(cfg.StaleMs)*time.Millisecond),
		AgeMs:    -1,
		Sky:      make([]SkyPoint, 0, len(snap.Satellites)),
	}
	if !snap.FixUpdated.IsZero() {
		d.AgeMs = snap.Age(now).Milliseconds()
	}
	if ts := snap.Fix.Timestamp; !ts.IsZero() {
		d.Time = ts.Format("15:04:05")
		d.Date = ts.Format("2006-01-02")
		d.Zone, _ = ts.Zone()
	}
	d.Latitude, d.Longitude, d.HasPosition = snap.Reference()

	for _, sat := range snap.Satellites {
		x, y := SkyXY(cfg.Sky, sat.Elevation, sat.Azimuth)
		size := sat.SNR
		if size < minMarkerSize {
			size = minMarkerSize
		}
		d.Sky = append(d.Sky, SkyPoint{
			PRN:    sat.PRN,
			X:      x,
			Y:      y,
			Size:   size,
			Signal: signalClass(sat.SNR),
			SNR:    sat.SNR,
			ElevD:  sat.Elevation * 180 / math.Pi,
			AzD:    sat.Azimuth * 180 / math.Pi,
		})
	}
	return d
}

func convertAltitude(m float64, unit string) float64 {
	if unit == "ft" {
		return m * 3.28084
	}
	return m
}

func convertSpeed(kn float64, unit string) float64 {
	switch unit {
	case "kph":
		return kn * 1.852
	case "mph":
		return kn * 1.15078
	}
	return kn
}
