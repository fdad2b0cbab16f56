package gps

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaunagostinho/pitft-gps/internal/nmea"
)

// feed is a fake serial port: lines pushed by the test, a short read
// timeout when idle, and an injectable I/O failure.
type feed struct {
	lines chan string
	fail  chan error
	buf   []byte
}

func newFeed() *feed {
	return &feed{lines: make(chan string, 64), fail: make(chan error, 1)}
}

func (f *feed) Read(b []byte) (int, error) {
	if len(f.buf) == 0 {
		select {
		case l := <-f.lines:
			f.buf = []byte(l + "\r\n")
		case err := <-f.fail:
			return 0, err
		case <-time.After(20 * time.Millisecond):
			return 0, nil
		}
	}
	n := copy(b, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *feed) send(bodies ...string) {
	for _, b := range bodies {
		f.lines <- nmea.Append(b)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestEngine(t *testing.T) (*Engine, *feed, *Metrics) {
	t.Helper()
	f := newFeed()
	m := NewMetrics(prometheus.NewRegistry())
	e := NewEngine(f, Options{Zone: time.UTC, Metrics: m})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if e.Stop() == nil {
			e.Wait()
		}
	})
	return e, f, m
}

func TestEngine_RoundTrip(t *testing.T) {
	e, f, m := newTestEngine(t)

	f.send(
		"GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W",
		"GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00",
		"GPGSV,3,2,11,14,25,170,00,16,57,208,39,18,67,296,40,19,40,246,00",
		"GPGSV,3,3,11,22,42,067,42,24,14,311,43,27,05,244,00,,,,",
	)
	waitFor(t, "satellite table", func() bool { return len(e.Snapshot().Satellites) == 11 })

	snap := e.Snapshot()
	if snap.Fix.Status != StatusAutonomous || snap.Fix.Satellites != 8 || snap.Fix.Altitude != 545.4 {
		t.Fatalf("fix=%+v", snap.Fix)
	}
	want := time.Date(1994, time.March, 23, 12, 35, 19, 0, time.UTC)
	if !snap.Fix.Timestamp.Equal(want) {
		t.Fatalf("timestamp=%v", snap.Fix.Timestamp)
	}
	// one sample in a zero-filled window of ten
	if got := degrees(snap.AvgLatitude); math.Abs(got-4.81173) > 1e-4 {
		t.Fatalf("avg latitude=%v", got)
	}
	if snap.Tracking() != 4 || snap.InView != 11 {
		t.Fatalf("tracking=%d inView=%d", snap.Tracking(), snap.InView)
	}
	if got := testutil.ToFloat64(m.Sentences.WithLabelValues(nmea.IDGPGSV)); got != 3 {
		t.Fatalf("gsv sentences=%v", got)
	}
	if got := testutil.ToFloat64(m.SatellitesInView); got != 11 {
		t.Fatalf("satellites gauge=%v", got)
	}
}

func TestEngine_BadChecksumLeavesStateUnchanged(t *testing.T) {
	e, f, m := newTestEngine(t)

	f.send("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	waitFor(t, "fix", func() bool { return e.Snapshot().Fix.Quality == 1 })
	before := e.Snapshot()

	f.lines <- "$GPGGA,not,a,valid,sentence*00"
	f.lines <- "$GPGGA,123520,0000.000,N,00000.000,E,2,12,0.5,1.0,M,1.0,M,,*FF"
	waitFor(t, "checksum failures", func() bool { return testutil.ToFloat64(m.ChecksumErrors) == 2 })

	if after := e.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestEngine_UnclassifiedFrameCounted(t *testing.T) {
	e, f, m := newTestEngine(t)

	f.send("GPGGA")
	waitFor(t, "unclassified frame", func() bool { return testutil.ToFloat64(m.Unclassified) == 1 })
	if got := testutil.ToFloat64(m.ChecksumErrors); got != 0 {
		t.Fatalf("checksum errors=%v", got)
	}
	if snap := e.Snapshot(); !snap.FixUpdated.IsZero() {
		t.Fatalf("unclassified frame touched state: %+v", snap)
	}
}

func TestEngine_PartialGroupKeepsPreviousTable(t *testing.T) {
	e, f, m := newTestEngine(t)

	f.send("GPGSV,1,1,02,05,40,100,30,07,20,200,25")
	waitFor(t, "first table", func() bool { return len(e.Snapshot().Satellites) == 2 })

	f.send(
		"GPGSV,2,1,05,01,10,010,11,02,20,020,22,03,30,030,33,04,40,040,44",
		"GPGSV,2,1,05,01,10,010,11,02,20,020,22,03,30,030,33,04,40,040,44",
	)
	waitFor(t, "discarded group", func() bool { return testutil.ToFloat64(m.GroupsDiscarded) == 1 })

	if sats := e.Snapshot().Satellites; len(sats) != 2 || sats[0].PRN != "05" {
		t.Fatalf("partial group leaked: %+v", sats)
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	f := newFeed()
	e := NewEngine(f, Options{Zone: time.UTC})

	if err := e.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stop while idle: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second stop: %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("wait after clean stop: %v", err)
	}
	if e.State() != Idle {
		t.Fatalf("state=%v", e.State())
	}

	// restart works and still processes input
	if err := e.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	f.send("GPGGA,123519,4807.038,N,01131.000,E,2,08,0.9,545.4,M,46.9,M,,")
	waitFor(t, "fix after restart", func() bool { return e.Snapshot().Fix.Status == StatusDifferential })
	e.Stop()
	e.Wait()
}

func TestEngine_StartWithoutSource(t *testing.T) {
	e := NewEngine(nil, Options{})
	if err := e.Start(); !errors.Is(err, ErrNoSource) {
		t.Fatalf("start=%v", err)
	}
	if snap := e.Snapshot(); snap.Fix.Status != StatusNoFix || !snap.FixUpdated.IsZero() {
		t.Fatalf("fresh snapshot=%+v", snap)
	}
}

func TestEngine_IOErrorEndsRun(t *testing.T) {
	f := newFeed()
	e := NewEngine(f, Options{Zone: time.UTC})
	e.Start()
	f.send("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	waitFor(t, "rmc", func() bool { return e.Snapshot().Fix.Validity == "A" })

	boom := errors.New("input/output error")
	f.fail <- boom
	if err := e.Wait(); !errors.Is(err, boom) {
		t.Fatalf("wait=%v", err)
	}
	if e.State() != Idle || !errors.Is(e.Err(), boom) {
		t.Fatalf("state=%v err=%v", e.State(), e.Err())
	}
	// last known values survive
	if e.Snapshot().Fix.Validity != "A" {
		t.Fatalf("state was reset after failure")
	}

	// reconnect onto a fresh source keeps the old state until new data lands
	f2 := newFeed()
	if err := e.SetSource(f2); err != nil {
		t.Fatalf("set source: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := e.SetSource(f); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("set source while running: %v", err)
	}
	f2.send("GPRMC,123520,V,,,,,,,230394,,")
	waitFor(t, "rmc on new source", func() bool { return e.Snapshot().Fix.Validity == "V" })
	e.Stop()
	e.Wait()
}

func TestEngine_StopWithoutLineFeeds(t *testing.T) {
	e := NewEngine(endless{}, Options{Zone: time.UTC})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop ignored stop, state=%v", e.State())
	}
}

func TestEngine_WaitKeepsErrorAcrossRestart(t *testing.T) {
	f := newFeed()
	e := NewEngine(f, Options{Zone: time.UTC})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	got := make(chan error, 1)
	go func() { got <- e.Wait() }()
	time.Sleep(20 * time.Millisecond)

	boom := errors.New("input/output error")
	f.fail <- boom
	waitFor(t, "restart", func() bool { return e.Start() == nil })
	defer func() {
		e.Stop()
		e.Wait()
	}()

	select {
	case err := <-got:
		if !errors.Is(err, boom) {
			t.Fatalf("wait=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not return")
	}
	if err := e.Err(); err != nil {
		t.Fatalf("err while the new run is live=%v", err)
	}
}

func TestEngine_DemoReachesFix(t *testing.T) {
	e := NewEngine(NewReplay(demoCapture, 2000, true), Options{Zone: time.UTC})
	e.Start()
	defer func() {
		e.Stop()
		e.Wait()
	}()
	var s Snapshot
	waitFor(t, "demo fix", func() bool {
		s = e.Snapshot()
		return s.Fix.Status == StatusDifferential && len(s.Satellites) == 11
	})
	if lat, lon, ok := s.Reference(); !ok || lat == 0 || lon == 0 {
		t.Fatalf("reference=%v,%v,%v", lat, lon, ok)
	}
}
