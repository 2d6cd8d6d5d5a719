package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	Rounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "rounds_total",
			Help:      "Rounds opened by the enabler.",
		},
	)

	RoundActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ringin",
			Name:      "round_active",
			Help:      "1 while a round is open for ring-ins.",
		},
	)

	RingIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "ring_ins_total",
			Help:      "Winning ring-ins per player.",
		},
		[]string{"player"},
	)

	RingInLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ringin",
			Name:      "ring_in_latency_seconds",
			Help:      "Time from round open to the winning press.",
			// 10ms .. ~20s
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	CountdownsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "countdowns_ended_total",
			Help:      "Finished countdowns by player and how they ended (expired, peer, operator).",
		},
		[]string{"player", "how"},
	)

	EarlyPresses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "early_presses_total",
			Help:      "Presses while the round was closed.",
		},
		[]string{"player"},
	)

	PenaltiesServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "penalties_served_total",
			Help:      "Penalty delays served.",
		},
		[]string{"player"},
	)

	SerialBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "serial_bytes_total",
			Help:      "Bytes exchanged with the peer.",
		},
		[]string{"direction"},
	)

	Handshakes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "peer_handshakes_total",
			Help:      "Pairing requests answered.",
		},
	)

	SerialReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "serial_open_attempts_total",
			Help:      "Attempts to open the serial device.",
		},
	)

	PeerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ringin",
			Name:      "serial_connected",
			Help:      "1 while the serial device is open.",
		},
	)

	AnnouncementsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "announcements_dropped_total",
			Help:      "Announcements dropped on a full queue.",
		},
	)

	JournalWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringin",
			Name:      "journal_writes_total",
			Help:      "Round journal writes by result.",
		},
		[]string{"result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ringin",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and device).",
		},
		[]string{"version", "device"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ringin",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		Rounds, RoundActive, RingIns, RingInLatency, CountdownsEnded,
		EarlyPresses, PenaltiesServed, SerialBytes, Handshakes,
		SerialReconnects, PeerConnected, AnnouncementsDropped, JournalWrites,
		buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version, device string) {
	buildInfo.WithLabelValues(version, device).Set(1)
}
