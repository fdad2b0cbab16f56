package gps

import geo "github.com/kellydunn/golang-geo"

// Reference picks the observer location in decimal degrees: the smoothed
// position while GGA reports a fix, else the raw RMC position while RMC
// flags it valid. ok is false when neither holds.
func (s Snapshot) Reference() (lat, lon float64, ok bool) {
	switch {
	case s.Fix.Quality > 0:
		return degrees(s.AvgLatitude), degrees(s.AvgLongitude), true
	case s.Fix.Validity == "A":
		return degrees(s.Fix.Latitude), degrees(s.Fix.Longitude), true
	}
	return 0, 0, false
}

// DriftMeters is the great-circle distance between the latest raw position
// and the smoothed one. Large while the window is still warming up.
func (s Snapshot) DriftMeters() float64 {
	raw := geo.NewPoint(degrees(s.Fix.Latitude), degrees(s.Fix.Longitude))
	avg := geo.NewPoint(degrees(s.AvgLatitude), degrees(s.AvgLongitude))
	return raw.GreatCircleDistance(avg) * 1000
}
