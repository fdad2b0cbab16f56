package gps

// WindowSize is the number of fixes averaged into the smoothed position.
const WindowSize = 10

// PositionWindow is a fixed-length FIFO of decimal-degree positions. It starts
// filled with zeros, so the first WindowSize-1 averages are pulled toward 0,0.
type PositionWindow struct {
	lat  [WindowSize]float64
	lon  [WindowSize]float64
	next int // slot overwritten by the next push (oldest sample)

	avgLat float64
	avgLon float64
}

// Push evicts the oldest sample, stores the new one and recomputes the mean.
func (w *PositionWindow) Push(lat, lon float64) {
	w.lat[w.next] = lat
	w.lon[w.next] = lon
	w.next = (w.next + 1) % WindowSize

	var sumLat, sumLon float64
	for i := 0; i < WindowSize; i++ {
		sumLat += w.lat[i]
		sumLon += w.lon[i]
	}
	w.avgLat = sumLat / WindowSize
	w.avgLon = sumLon / WindowSize
}

// Average returns the mean of the full window in decimal degrees.
func (w *PositionWindow) Average() (lat, lon float64) {
	return w.avgLat, w.avgLon
}

// Len is always WindowSize.
func (w *PositionWindow) Len() int { return WindowSize }
