package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/metrics"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// StagnationOutcome classifies what the loop guard did to a turn.
type StagnationOutcome string

const (
	// StagnationNone means the turn made progress or stayed under every threshold.
	StagnationNone StagnationOutcome = "none"
	// StagnationWarn means the warn threshold was crossed; metric only.
	StagnationWarn StagnationOutcome = "warn"
	// StagnationSoftReset means the session was reset to init/init.
	StagnationSoftReset StagnationOutcome = "soft_reset"
	// StagnationEscalate means the session was handed to a human.
	StagnationEscalate StagnationOutcome = "escalate"
)

// EscalationHandoffMessage is the synthesized reply sent when the loop guard
// hands a stuck conversation to a human operator.
const EscalationHandoffMessage = "I'm connecting you with one of our team members who can help you directly. Thank you for your patience!"

// Fingerprint produces a stable hash summarizing conversational progress:
// funnel state, dialog phase, detected intent, the ordered selected-product
// identifiers and the small set of fingerprinted customer fields. Message
// text deliberately does not participate: a user repeating themselves in
// different words is still a stagnant conversation.
func Fingerprint(st *models.ConversationState) string {
	parts := []string{
		string(st.CurrentState),
		string(st.DialogPhase),
		string(st.DetectedIntent),
	}
	for _, p := range st.SelectedProducts {
		parts = append(parts, p.ID)
	}
	parts = append(parts,
		st.Customer.Name,
		st.Customer.PreferredSize,
		st.Customer.PreferredColor,
		st.Customer.ShippingCity,
	)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// StagnationDetector drives the warn / soft-reset / hard-escalate ladder
// from the counters embedded in the session document.
type StagnationDetector struct {
	cfg Config
}

// NewStagnationDetector creates a detector with the given thresholds.
func NewStagnationDetector(cfg Config) *StagnationDetector {
	return &StagnationDetector{cfg: cfg}
}

// ClearRecoverableMarker removes a soft-recovery marker stamped by the
// previous turn. Called at the start of every turn so stale markers never
// leak into a successful turn.
func (d *StagnationDetector) ClearRecoverableMarker(st *models.ConversationState) {
	if st.LastError == models.LastErrorSoftRecovery {
		slog.Debug("StagnationDetector.ClearRecoverableMarker: clearing stale marker", "sessionID", st.SessionID)
		st.LastError = ""
	}
}

// Observe compares the pre-turn and post-turn fingerprints, updates the
// embedded counters, and applies the escalation ladder to the document.
// The turn counter is monotonic and never resets; the stagnant counter
// resets to zero the instant a turn is non-stagnant. A soft reset does NOT
// reset the stagnant counter: a session that keeps stalling after an
// apparent recovery must still be able to reach hard escalation.
func (d *StagnationDetector) Observe(st *models.ConversationState, preFingerprint string) StagnationOutcome {
	post := Fingerprint(st)
	gc := st.GuardCounters()
	gc.TurnCount++

	if post != preFingerprint {
		gc.StagnantTurns = 0
		gc.LastFingerprint = post
		st.SetGuardCounters(gc)
		return StagnationNone
	}

	gc.StagnantTurns++
	gc.LastFingerprint = post
	metrics.StagnantTurns.Inc()
	slog.Debug("StagnationDetector.Observe: stagnant turn",
		"sessionID", st.SessionID, "stagnantTurns", gc.StagnantTurns, "turnCount", gc.TurnCount)

	outcome := StagnationNone
	switch {
	case gc.StagnantTurns >= d.cfg.HardEscalateThreshold:
		outcome = StagnationEscalate
		st.CurrentState = models.StateComplaint
		st.DialogPhase = models.PhaseComplaint
		st.ShouldEscalate = true
		st.LastError = models.LastErrorEscalation
		st.Metadata[models.MetadataKeyEscalationReason] = "conversation stagnant past hard threshold"
		st.AppendMessage(models.RoleAssistant, EscalationHandoffMessage)
		metrics.Escalations.WithLabelValues("loop_guard").Inc()
		slog.Warn("StagnationDetector.Observe: hard escalation",
			"sessionID", st.SessionID, "stagnantTurns", gc.StagnantTurns)

	case gc.StagnantTurns >= d.cfg.SoftResetThreshold:
		outcome = StagnationSoftReset
		st.CurrentState = models.StateInit
		st.DialogPhase = models.PhaseInit
		st.DetectedIntent = ""
		st.LastError = models.LastErrorSoftRecovery
		metrics.SoftResets.Inc()
		slog.Warn("StagnationDetector.Observe: soft reset",
			"sessionID", st.SessionID, "stagnantTurns", gc.StagnantTurns)

	case gc.StagnantTurns >= d.cfg.WarnThreshold:
		outcome = StagnationWarn
		metrics.LoopWarnings.Inc()
		slog.Warn("StagnationDetector.Observe: stagnation warning",
			"sessionID", st.SessionID, "stagnantTurns", gc.StagnantTurns)
	}

	st.SetGuardCounters(gc)
	return outcome
}

// BumpStateTurns updates the consecutive-state-turn counter after the guard
// pass settles the post-turn state.
func BumpStateTurns(st *models.ConversationState, before models.State) {
	gc := st.GuardCounters()
	if st.CurrentState == before {
		gc.StateTurns++
	} else {
		gc.StateTurns = 1
	}
	st.SetGuardCounters(gc)
}
