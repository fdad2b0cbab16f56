package server

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	geo "github.com/kellydunn/golang-geo"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
)

// OdoData is the distance info sent to clients.
type OdoData struct {
	Total float64 `json:"total"` // km
	Trip  float64 `json:"trip"`  // km
}

const (
	minMovingKnots = 0.5
	maxStepKm      = 0.5   // larger jumps between refreshes are glitches
	minStepKm      = 0.002 // below this is jitter
)

// Odometer accumulates distance between successive smoothed fixes and
// persists it across restarts.
type Odometer struct {
	mu    sync.Mutex
	total float64
	trip  float64
	last  *geo.Point
	path  string
}

func NewOdometer(path string) *Odometer {
	o := &Odometer{path: path}
	o.load()
	return o
}

// Update feeds one snapshot. Only moving, valid fixes count.
func (o *Odometer) Update(snap gps.Snapshot) {
	lat, lon, ok := snap.Reference()
	if !ok || snap.Fix.Speed < minMovingKnots {
		return
	}
	p := geo.NewPoint(lat, lon)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = p
		return
	}
	dist := o.last.GreatCircleDistance(p)
	switch {
	case dist > maxStepKm:
		o.last = p
	case dist > minStepKm:
		o.total += dist
		o.trip += dist
		o.last = p
	}
}

func (o *Odometer) Read() OdoData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OdoData{Total: math.Round(o.total*10) / 10, Trip: math.Round(o.trip*10) / 10}
}

func (o *Odometer) ResetTrip() {
	o.mu.Lock()
	o.trip = 0
	o.mu.Unlock()
	o.Save()
}

func (o *Odometer) load() {
	data, err := os.ReadFile(o.path)
	if err != nil {
		log.Printf("[odo] no saved data at %s (starting at 0)", o.path)
		return
	}
	parts := strings.Split(strings.TrimSpace(string(data)), "\n")
	if v, err := strconv.ParseFloat(parts[0], 64); err == nil {
		o.total = v
	}
	if len(parts) >= 2 {
		if v, err := strconv.ParseFloat(parts[1], 64); err == nil {
			o.trip = v
		}
	}
	log.Printf("[odo] loaded: total=%.1f km, trip=%.1f km", o.total, o.trip)
}

func (o *Odometer) Save() {
	o.mu.Lock()
	total, trip := o.total, o.trip
	o.mu.Unlock()

	os.MkdirAll(filepath.Dir(o.path), 0755)
	data := fmt.Sprintf("%.6f\n%.6f\n", total, trip)
	if err := os.WriteFile(o.path, []byte(data), 0644); err != nil {
		log.Printf("[odo] save failed: %v", err)
	}
}
