package gps

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the acquisition loop sees. Transient failures are
// logged sparingly, so these counters are the complete record.
type Metrics struct {
	Frames           prometheus.Counter
	ChecksumErrors   prometheus.Counter
	Unclassified     prometheus.Counter
	DecodeWarnings   prometheus.Counter
	Truncated        prometheus.Counter
	GroupsDiscarded  prometheus.Counter
	ReadTimeouts     prometheus.Counter
	Sentences        *prometheus.CounterVec
	FixQuality       prometheus.Gauge
	SatellitesInView prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "frames_total",
			Help: "Lines read from the receiver.",
		}),
		ChecksumErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "checksum_errors_total",
			Help: "Frames discarded for a bad checksum or envelope.",
		}),
		Unclassified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "unclassified_total",
			Help: "Valid frames without a sentence id and field list.",
		}),
		DecodeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "decode_warnings_total",
			Help: "Fields that failed to parse and were defaulted.",
		}),
		Truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "truncated_total",
			Help: "Sentences discarded for missing mandatory fields.",
		}),
		GroupsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "gsv", Name: "groups_discarded_total",
			Help: "Satellites-in-view groups dropped before completion.",
		}),
		ReadTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "serial", Name: "read_timeouts_total",
			Help: "Reads that returned without a complete line.",
		}),
		Sentences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitftgps", Subsystem: "nmea", Name: "sentences_total",
			Help: "Valid sentences by id.",
		}, []string{"id"}),
		FixQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pitftgps", Subsystem: "fix", Name: "quality",
			Help: "Last GGA quality code.",
		}),
		SatellitesInView: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pitftgps", Subsystem: "gsv", Name: "satellites_in_view",
			Help: "Satellites in the last published table.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Frames, m.ChecksumErrors, m.Unclassified, m.DecodeWarnings, m.Truncated,
			m.GroupsDiscarded, m.ReadTimeouts, m.Sentences,
			m.FixQuality, m.SatellitesInView,
		)
	}
	return m
}
