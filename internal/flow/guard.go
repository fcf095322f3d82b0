package flow

import (
	"log/slog"

	"github.com/BTreeMap/SalesPipe/internal/metrics"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Machine-readable correction reasons attached to every guard decision.
const (
	ReasonAllowed            = "allowed"
	ReasonIntentHint         = "intent_hint"
	ReasonTurnCapProgression = "turn_cap_progression"
	ReasonSelfLoop           = "self_loop"
	ReasonFirstAllowed       = "first_allowed"
	ReasonDefaultProgression = "default_progression"
)

// GuardDecision is the outcome of validating one proposed transition.
type GuardDecision struct {
	From      models.State
	Proposed  models.State
	Corrected models.State
	Reason    string
}

// Changed reports whether the guard replaced the proposed target.
func (d GuardDecision) Changed() bool {
	return d.Proposed != d.Corrected
}

// TransitionGuard validates and corrects proposed state transitions against
// the static table. It is stateless; all per-session history it consults is
// embedded in the session document's guard counters.
type TransitionGuard struct{}

// NewTransitionGuard creates a TransitionGuard.
func NewTransitionGuard() *TransitionGuard {
	return &TransitionGuard{}
}

// Check corrects a proposed transition. stateTurns is the number of
// consecutive turns already spent in `before`. The rules apply in order,
// first match wins:
//
//  1. proposed target allowed by the table → accept unchanged
//  2. intent hint exists and is allowed from `before` → use the hint
//  3. `before` exceeded its turn cap → force the natural successor
//  4. self-loop allowed → stay in `before`
//  5. first candidate of the ordered allowed-set
//  6. hardcoded default-progression map
//
// The returned target is always a member of TransitionsFrom(before) ∪ {before}.
func (g *TransitionGuard) Check(sessionID string, before, proposed models.State, intent models.Intent, phase models.DialogPhase, stateTurns int) GuardDecision {
	before = models.NormalizeState(string(before))
	proposed = models.NormalizeState(string(proposed))

	d := GuardDecision{From: before, Proposed: proposed}

	switch {
	case models.IsAllowed(before, proposed, intent, phase):
		d.Corrected = proposed
		d.Reason = ReasonAllowed
	case g.hintApplies(before, intent, phase):
		hint, _ := models.IntentHint(intent)
		d.Corrected = hint
		d.Reason = ReasonIntentHint
	case stateTurns >= models.MaxTurnsFor(before):
		d.Corrected = models.NaturalSuccessor(before)
		d.Reason = ReasonTurnCapProgression
	case models.IsAllowed(before, before, intent, phase):
		d.Corrected = before
		d.Reason = ReasonSelfLoop
	case len(models.TransitionsFrom(before)) > 0:
		d.Corrected = models.TransitionsFrom(before)[0]
		d.Reason = ReasonFirstAllowed
	default:
		d.Corrected = models.DefaultSuccessor(before)
		d.Reason = ReasonDefaultProgression
	}

	if d.Changed() {
		metrics.TransitionCorrections.WithLabelValues(d.Reason).Inc()
		slog.Info("TransitionGuard.Check: corrected transition",
			"sessionID", sessionID, "from", before, "proposed", proposed,
			"corrected", d.Corrected, "intent", intent, "phase", phase, "reason", d.Reason)
	} else {
		slog.Debug("TransitionGuard.Check: transition accepted",
			"sessionID", sessionID, "from", before, "to", proposed, "intent", intent, "phase", phase)
	}
	return d
}

func (g *TransitionGuard) hintApplies(before models.State, intent models.Intent, phase models.DialogPhase) bool {
	hint, ok := models.IntentHint(intent)
	if !ok {
		return false
	}
	return models.IsAllowed(before, hint, intent, phase)
}

// Phase correction kinds reported to metrics.
const (
	PhaseCorrectionUnknownPhase = "unknown_phase_reset"
	PhaseCorrectionSelfOwning   = "self_owning_phase_forced"
	PhaseCorrectionStateRewrite = "state_rewritten_to_phase"
)

// EnforcePhaseConsistency keeps dialog_phase and current_state mutually
// consistent on the document, after the transition guard has settled the
// state. The two self-owning phases (complaint, out-of-domain) always win:
// whenever the state equals their owning State the phase is force-set to
// match, regardless of the upstream proposal. For every other phase the
// state is rewritten to the phase's expected state.
func EnforcePhaseConsistency(st *models.ConversationState) {
	if !models.IsValidPhase(st.DialogPhase) {
		slog.Warn("EnforcePhaseConsistency: unknown phase, resetting to init/init",
			"sessionID", st.SessionID, "phase", st.DialogPhase)
		metrics.PhaseCorrections.WithLabelValues(PhaseCorrectionUnknownPhase).Inc()
		st.CurrentState = models.StateInit
		st.DialogPhase = models.PhaseInit
		return
	}

	if forced, ok := models.SelfOwningPhaseFor(st.CurrentState); ok {
		if st.DialogPhase != forced {
			slog.Info("EnforcePhaseConsistency: forcing self-owning phase",
				"sessionID", st.SessionID, "state", st.CurrentState,
				"proposedPhase", st.DialogPhase, "forcedPhase", forced)
			metrics.PhaseCorrections.WithLabelValues(PhaseCorrectionSelfOwning).Inc()
			st.DialogPhase = forced
		}
		return
	}

	expected, _ := st.DialogPhase.ExpectedState()
	if st.CurrentState != expected {
		slog.Info("EnforcePhaseConsistency: rewriting state to match phase",
			"sessionID", st.SessionID, "phase", st.DialogPhase,
			"state", st.CurrentState, "expected", expected)
		metrics.PhaseCorrections.WithLabelValues(PhaseCorrectionStateRewrite).Inc()
		st.CurrentState = expected
	}
}
