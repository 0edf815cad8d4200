// Package metrics exposes purely ambient observability for the tutor
// runtime: session counts, interrupt-suppression drop counts, and
// flashcard-call latencies. Nothing here gates control flow — it is wired
// to /metrics the way haasonsaas-nexus and kadirpekel-hector expose
// Prometheus gauges/histograms alongside their external-API clients.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kotori",
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created via the management API.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kotori",
		Name:      "sessions_active",
		Help:      "Number of sessions currently marked active.",
	})

	InterruptsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kotori",
		Name:      "interrupts_accepted_total",
		Help:      "Interrupts delivered to the push channel as ai_response events.",
	})

	InterruptsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kotori",
		Name:      "interrupts_suppressed_total",
		Help:      "Interrupts dropped by the duplicate-interrupt filter.",
	})

	FlashcardCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kotori",
		Name:      "flashcard_call_duration_seconds",
		Help:      "Latency of calls to the local flashcard service, by action.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	FlashcardCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kotori",
		Name:      "flashcard_call_errors_total",
		Help:      "Flashcard service call failures, by action and error kind.",
	}, []string{"action", "kind"})

	ReapedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kotori",
		Name:      "sessions_reaped_total",
		Help:      "Sessions removed by the idle-session maintenance sweep.",
	})
)
