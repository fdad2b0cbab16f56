package gps

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tevino/abool/v2"

	"github.com/shaunagostinho/pitft-gps/internal/nmea"
)

var (
	ErrAlreadyRunning = errors.New("gps: engine already running")
	ErrNotRunning     = errors.New("gps: engine not running")
	ErrNoSource       = errors.New("gps: engine has no source")
)

// RunState is the lifecycle of the acquisition loop.
type RunState int

const (
	Idle RunState = iota
	Running
	Stopping
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Options tunes an Engine. The zero value is usable.
type Options struct {
	// LogInterval is the minimum gap between checksum failure log lines.
	// Failures in between are only counted.
	LogInterval time.Duration
	// Zone receiver timestamps are presented in. Nil means LocalZone().
	Zone *time.Location
	// Metrics to update. Nil means unregistered collectors.
	Metrics *Metrics
}

// Engine runs the acquisition loop over a sentence source and owns the
// receiver state it feeds.
type Engine struct {
	mu   sync.Mutex
	run  RunState
	last *runResult // current or most recent run
	stop *abool.AtomicBool

	reader  *FrameReader
	state   *State
	sats    satelliteAssembler
	metrics *Metrics

	logInterval time.Duration
	lastLog     time.Time
	suppressed  int
}

// runResult belongs to one Start. err is written before done is closed.
type runResult struct {
	done chan struct{}
	err  error
}

// NewEngine prepares an idle engine reading from src. src should return
// from Read within a bounded timeout so Stop is observed promptly. src may be
// nil when it is attached later with SetSource.
func NewEngine(src io.Reader, opts Options) *Engine {
	zone := opts.Zone
	if zone == nil {
		zone = LocalZone()
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}
	e := &Engine{
		stop:        abool.New(),
		state:       NewState(zone),
		metrics:     m,
		logInterval: opts.LogInterval,
	}
	if src != nil {
		e.reader = NewFrameReader(src)
	}
	return e
}

// LocalZone resolves the system zone once into a fixed offset.
func LocalZone() *time.Location {
	name, offset := time.Now().Zone()
	return time.FixedZone(name, offset)
}

// SetSource swaps the sentence source of an idle engine, e.g. after the
// serial device was reopened. Receiver state is kept.
func (e *Engine) SetSource(src io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != Idle {
		return ErrAlreadyRunning
	}
	e.reader = NewFrameReader(src)
	return nil
}

// Start spawns the acquisition loop and returns immediately.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != Idle {
		return ErrAlreadyRunning
	}
	if e.reader == nil {
		return ErrNoSource
	}
	e.sats.reset()
	e.stop.UnSet()
	e.run = Running
	e.last = &runResult{done: make(chan struct{})}
	go e.loop(e.last)
	log.Printf("[gps] engine started")
	return nil
}

// Stop asks the loop to exit after its current iteration. It does not wait;
// use Wait for that.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != Running {
		return ErrNotRunning
	}
	e.run = Stopping
	e.stop.Set()
	return nil
}

// Wait blocks until the current run ends and returns the error that ended
// it, nil after a requested stop. A later Start does not affect the result.
func (e *Engine) Wait() error {
	e.mu.Lock()
	r := e.last
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Err is the error that ended the most recent run. It is nil while a run is
// live and after a requested stop.
func (e *Engine) Err() error {
	e.mu.Lock()
	r := e.last
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

func (e *Engine) Snapshot() Snapshot { return e.state.Snapshot() }

func (e *Engine) Metrics() *Metrics { return e.metrics }

func (e *Engine) loop(r *runResult) {
	var err error
	defer func() {
		r.err = err
		e.mu.Lock()
		e.run = Idle
		e.mu.Unlock()
		close(r.done)
		if err != nil {
			log.Printf("[gps] engine stopped: %v", err)
		} else {
			log.Printf("[gps] engine stopped")
		}
	}()

	for !e.stop.IsSet() {
		var line string
		line, err = e.reader.ReadFrame()
		if err != nil {
			return
		}
		if line == "" {
			e.metrics.ReadTimeouts.Inc()
			continue
		}
		e.handle(line)
	}
}

// handle runs one line through validate, classify, decode and apply.
func (e *Engine) handle(line string) {
	e.metrics.Frames.Inc()

	body, err := nmea.Validate(line)
	if err != nil {
		e.metrics.ChecksumErrors.Inc()
		e.logDiscard(line, err)
		return
	}
	id, fields, err := nmea.Classify(body)
	if err != nil {
		e.metrics.Unclassified.Inc()
		e.logDiscard(line, err)
		return
	}

	switch id {
	case nmea.IDGPGGA, nmea.IDGNGGA:
		g, err := nmea.DecodeGGA(fields)
		if err != nil {
			e.truncated(id, err)
			return
		}
		e.metrics.DecodeWarnings.Add(float64(g.Warnings))
		e.state.applyGGA(g)
		e.metrics.FixQuality.Set(float64(g.Quality))

	case nmea.IDGPRMC, nmea.IDGNRMC:
		m, err := nmea.DecodeRMC(fields)
		if err != nil {
			e.truncated(id, err)
			return
		}
		e.metrics.DecodeWarnings.Add(float64(m.Warnings))
		e.state.applyRMC(m)

	case nmea.IDGPGSV:
		s, err := nmea.DecodeGSV(fields)
		if err != nil {
			if e.sats.active {
				e.metrics.GroupsDiscarded.Inc()
			}
			e.sats.reset()
			e.truncated(id, err)
			return
		}
		e.metrics.DecodeWarnings.Add(float64(s.Warnings))
		table, ok, err := e.sats.add(s)
		if err != nil {
			e.metrics.GroupsDiscarded.Inc()
			log.Printf("[gps] %v", err)
		}
		if ok {
			e.state.publishSatellites(table, s.InView)
			e.metrics.SatellitesInView.Set(float64(len(table)))
		}

	default:
		return
	}
	e.metrics.Sentences.WithLabelValues(id).Inc()
}

func (e *Engine) truncated(id string, err error) {
	if errors.Is(err, nmea.ErrTruncated) {
		e.metrics.Truncated.Inc()
	}
	log.Printf("[gps] %s discarded: %v", id, err)
}

// logDiscard reports frames dropped before decoding at most once per
// logInterval.
func (e *Engine) logDiscard(line string, err error) {
	now := time.Now()
	if e.logInterval > 0 && !e.lastLog.IsZero() && now.Sub(e.lastLog) < e.logInterval {
		e.suppressed++
		return
	}
	if e.suppressed > 0 {
		log.Printf("[gps] discarded %q: %v (%d more since last report)", line, err, e.suppressed)
	} else {
		log.Printf("[gps] discarded %q: %v", line, err)
	}
	e.lastLog = now
	e.suppressed = 0
}
