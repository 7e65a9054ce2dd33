package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruptline_case_transitions_total",
			Help: "Case status transitions by target status and outcome",
		},
		[]string{"to", "outcome"}, // outcome: ok/unauthorized/invalid
	)

	CasesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "disruptline_cases_created_total",
			Help: "Total number of disruption cases reported",
		},
	)

	// Coordination metrics
	OutreachTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruptline_outreach_total",
			Help: "Stakeholder outreach attempts by contact method and status",
		},
		[]string{"method", "status"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruptline_actions_total",
			Help: "Executed plan actions by type and status",
		},
		[]string{"type", "status"},
	)

	CollectorPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "disruptline_collector_polls_total",
			Help: "Timeline scans performed by the response collector",
		},
	)

	RCATotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruptline_rca_total",
			Help: "Root-cause syntheses by outcome",
		},
		[]string{"outcome"}, // outcome: parsed/fallback
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disruptline_coordination_phase_duration_seconds",
			Help:    "Coordination phase duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"phase"},
	)

	ReasoningRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disruptline_reasoning_request_duration_seconds",
			Help:    "Reasoning collaborator request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"model", "status"},
	)

	// Evidence metrics
	EvidenceRecomputeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "disruptline_evidence_recompute_total",
			Help: "Evidence score recomputations",
		},
	)

	EvidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disruptline_evidence_score",
			Help:    "Distribution of computed evidence scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disruptline_webhook_deliveries_total",
			Help: "Timeline webhook deliveries by status",
		},
		[]string{"status"},
	)
)
