package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fusion results recorded in FusionTotal.
const (
	FusionCreated    = "created"
	FusionUpdated    = "updated"
	FusionSuperseded = "superseded"
	FusionSkipped    = "skipped"
)

// Arbiter events recorded in ArbiterEvents.
const (
	ArbiterGrant   = "grant"
	ArbiterRevoke  = "revoke"
	ArbiterPreempt = "preempt"
	ArbiterEnqueue = "enqueue"
	ArbiterRestore = "restore"
)

var (
	// Occupants tracks the number of live occupants in the angular grid.
	Occupants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autodrive_occupants",
		Help: "Live occupants in the angular occupancy grid",
	})

	// FusionTotal counts blob fusion outcomes by result.
	FusionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autodrive_fusion_total",
		Help: "Blob fusion outcomes by result",
	}, []string{"result"})

	// ExpiredTotal counts occupants purged by expiry sweeps.
	ExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autodrive_expired_total",
		Help: "Occupants purged after their survival probability fell below the threshold",
	})

	// ArbiterEvents counts arbiter grant/revoke/preempt/enqueue/restore events per channel.
	ArbiterEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autodrive_arbiter_events_total",
		Help: "Actuation arbiter events by channel and event",
	}, []string{"channel", "event"})

	// WatchdogStrategy exposes the collision watchdog strategy as a number
	// (0 none, 1 braking, 2 swerve left, 3 swerve right).
	WatchdogStrategy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autodrive_watchdog_strategy",
		Help: "Current collision avoidance strategy",
	})

	// TickDuration tracks the wall time of one control cycle.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autodrive_tick_duration_seconds",
		Help:    "Control cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})
)
