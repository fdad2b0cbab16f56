package server

import (
	"math"
	"testing"
	"time"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
)

func rad(d float64) float64 { return d * math.Pi / 180 }

func TestSkyXY(t *testing.T) {
	sky := DefaultConfig().Display.Sky
	cases := []struct {
		name         string
		elev, az     float64
		wantX, wantY int
	}{
		{"zenith", 90, 0, 160, 120},
		{"north horizon", 0, 0, 160, 0},
		{"east horizon", 0, 90, 280, 120},
		{"south horizon", 0, 180, 160, 240},
		{"west 45", 45, 270, 100, 120},
	}
	for _, c := range cases {
		x, y := SkyXY(sky, rad(c.elev), rad(c.az))
		if abs(x-c.wantX) > 1 || abs(y-c.wantY) > 1 {
			t.Fatalf("%s: got %d,%d want %d,%d", c.name, x, y, c.wantX, c.wantY)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestBuildDisplay(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 10, 0, time.UTC)
	zone := time.FixedZone("BST", 3600)
	snap := gps.Snapshot{
		Fix: gps.Fix{
			Status:     gps.StatusAutonomous,
			Validity:   "A",
			Quality:    1,
			Satellites: 7,
			Altitude:   100,
			HDOP:       1.2,
			Speed:      10,
			Timestamp:  time.Date(2026, 10, 18, 11, 59, 59, 0, time.UTC).In(zone),
		},
		AvgLatitude:  rad(52.2),
		AvgLongitude: rad(0.12),
		Satellites: []gps.SatelliteSlot{
			{PRN: "16", Elevation: rad(90), Azimuth: 0, SNR: 46},
			{PRN: "07", Elevation: rad(12), Azimuth: rad(45), SNR: 12},
			{PRN: "13", Elevation: rad(5), Azimuth: rad(330)},
		},
		FixUpdated: now.Add(-2 * time.Second),
	}
	cfg := DefaultConfig().Display
	cfg.Units.Altitude = "ft"
	cfg.Units.Speed = "kph"

	d := BuildDisplay(snap, cfg, now)
	if d.Time != "12:59:59" || d.Date != "2026-10-18" || d.Zone != "BST" {
		t.Fatalf("time=%q date=%q zone=%q", d.Time, d.Date, d.Zone)
	}
	if d.Tracked != 2 || d.Visible != 3 || d.InUse != 7 {
		t.Fatalf("tracked=%d visible=%d inUse=%d", d.Tracked, d.Visible, d.InUse)
	}
	if math.Abs(d.Altitude-328.084) > 1e-3 || math.Abs(d.Speed-18.52) > 1e-9 {
		t.Fatalf("altitude=%v speed=%v", d.Altitude, d.Speed)
	}
	if !d.HasPosition || math.Abs(d.Latitude-52.2) > 1e-9 {
		t.Fatalf("position=%v,%v,%v", d.Latitude, d.Longitude, d.HasPosition)
	}
	if d.Stale || d.AgeMs != 2000 {
		t.Fatalf("stale=%v age=%d", d.Stale, d.AgeMs)
	}
	if len(d.Sky) != 3 {
		t.Fatalf("sky=%+v", d.Sky)
	}
	if p := d.Sky[0]; p.X != 160 || p.Y != 120 || p.Signal != "good" || p.Size != 46 {
		t.Fatalf("zenith point=%+v", p)
	}
	if p := d.Sky[1]; p.Signal != "weak" || p.Size != 12 {
		t.Fatalf("weak point=%+v", p)
	}
	if p := d.Sky[2]; p.Signal != "none" || p.Size != minMarkerSize {
		t.Fatalf("silent point=%+v", p)
	}
}

func TestBuildDisplay_NoData(t *testing.T) {
	d := BuildDisplay(gps.Snapshot{}, DefaultConfig().Display, time.Now())
	if !d.Stale || d.AgeMs != -1 || d.HasPosition || d.Time != "" {
		t.Fatalf("empty display=%+v", d)
	}
	if d.Status != gps.StatusNoFix || d.Sky == nil {
		t.Fatalf("status=%v sky=%v", d.Status, d.Sky)
	}
}
