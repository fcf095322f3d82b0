// Package metrics exposes Prometheus counters for the guard layer. The
// counters are registered on the default registry and served by the API's
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionCorrections counts guard corrections by the machine-readable
	// reason the guard attached to the corrected transition.
	TransitionCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salespipe_transition_corrections_total",
		Help: "State transitions corrected by the transition guard, by reason.",
	}, []string{"reason"})

	// PhaseCorrections counts state overwrites performed by phase
	// consistency enforcement.
	PhaseCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salespipe_phase_corrections_total",
		Help: "State/phase pairs corrected by the phase consistency enforcer, by kind.",
	}, []string{"kind"})

	// StagnantTurns counts turns whose progress fingerprint did not change.
	StagnantTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salespipe_stagnant_turns_total",
		Help: "Turns detected as stagnant by the loop guard.",
	})

	// LoopWarnings counts sessions crossing the warn threshold.
	LoopWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salespipe_loop_warnings_total",
		Help: "Loop-guard warn threshold crossings.",
	})

	// SoftResets counts loop-guard soft resets back to init/init.
	SoftResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salespipe_soft_resets_total",
		Help: "Loop-guard soft resets.",
	})

	// Escalations counts human hand-offs by reason.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salespipe_escalations_total",
		Help: "Conversations escalated to a human operator, by reason.",
	}, []string{"reason"})

	// RetryAttempts counts step retries by step name.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salespipe_retry_attempts_total",
		Help: "Step execution retries, by step.",
	}, []string{"step"})

	// OversizeCheckpoints counts checkpoints exceeding the soft byte limit.
	OversizeCheckpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salespipe_oversize_checkpoints_total",
		Help: "Persisted checkpoints that exceeded the configured soft size limit.",
	})

	// TrimmedMessages counts history messages dropped by the size governor.
	TrimmedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salespipe_trimmed_messages_total",
		Help: "History messages trimmed before persistence.",
	})
)
