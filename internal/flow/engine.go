package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

// lastErrorCleared is a sentinel a step returns in StepResult.LastError to
// clear a sticky marker on the document. An empty LastError means no change.
const lastErrorCleared = "cleared"

// Engine runs the guard pass for one turn: load, route, execute under the
// retry budget, validate/correct the transition, detect stagnation, trim,
// save. It holds no per-session state; everything lives on the document.
type Engine struct {
	store    store.Store
	guard    *TransitionGuard
	detector *StagnationDetector
	router   *Router
	retry    *RetryPolicy
	governor *StateSizeGovernor
	cfg      Config
}

// NewEngine wires a turn engine from a store and guard configuration.
func NewEngine(s store.Store, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}
	return &Engine{
		store:    s,
		guard:    NewTransitionGuard(),
		detector: NewStagnationDetector(cfg),
		router:   NewRouter(),
		retry:    NewRetryPolicy(cfg),
		governor: NewStateSizeGovernor(cfg),
		cfg:      cfg,
	}, nil
}

// Route exposes the router for the runtime.
func (e *Engine) Route(st *models.ConversationState) models.Step {
	return e.router.Route(st)
}

// Guard exposes the transition guard for the runtime: it validates the
// before->after transition against the document's intent and phase, corrects
// the document in place, and returns it sanitized.
func (e *Engine) Guard(before, after models.State, st *models.ConversationState) *models.ConversationState {
	gc := st.GuardCounters()
	d := e.guard.Check(st.SessionID, before, after, st.DetectedIntent, st.DialogPhase, gc.StateTurns)
	st.CurrentState = d.Corrected
	if d.Changed() {
		st.DialogPhase = models.DefaultPhaseFor(d.Corrected)
	}
	EnforcePhaseConsistency(st)
	return st
}

// RetryingExecute exposes the retry wrapper for the runtime.
func (e *Engine) RetryingExecute(ctx context.Context, sessionID string, step models.Step, fn StepFunc) *StepResult {
	return e.retry.Execute(ctx, sessionID, step, fn)
}

// Reset deletes a session document. The next inbound message starts fresh.
func (e *Engine) Reset(sessionID string) error {
	slog.Info("Engine.Reset: deleting session", "sessionID", sessionID)
	return e.store.DeleteConversation(sessionID)
}

// Load returns the persisted document for a session, or nil when absent.
func (e *Engine) Load(sessionID string) (*models.ConversationState, error) {
	return e.store.LoadConversation(sessionID)
}

// ProcessTurn runs one inbound message through the full guard pass and
// returns the outbound reply. The loaded document is never mutated; all work
// happens on a clone that becomes visible only through the final save, so an
// abandoned turn leaves no partial state.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID string, in TurnInput) (string, error) {
	st, err := e.loadOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	st = st.Clone()
	st.Normalize()
	e.detector.ClearRecoverableMarker(st)

	pre := Fingerprint(st)
	before := st.CurrentState

	var attachments []models.Attachment
	if in.HasImage {
		attachments = append(attachments, models.Attachment{Kind: "image"})
	}
	st.AppendMessage(models.RoleUser, in.UserText, attachments...)

	res, err := e.executeTurn(ctx, st, in)
	if err != nil {
		return "", err
	}

	e.applyResult(st, before, res)
	BumpStateTurns(st, before)
	e.detector.Observe(st, pre)

	e.governor.Apply(st)
	st.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveConversation(st); err != nil {
		return "", fmt.Errorf("failed to persist turn for %s: %w", sessionID, err)
	}

	return lastAssistantMessage(st), nil
}

// loadOrCreate loads the session document, substituting a fresh initial state
// when none exists or the persisted one fails validation.
func (e *Engine) loadOrCreate(sessionID string) (*models.ConversationState, error) {
	st, err := e.store.LoadConversation(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if st == nil {
		slog.Info("Engine.loadOrCreate: new session", "sessionID", sessionID)
		return models.NewConversationState(sessionID), nil
	}
	if err := st.Validate(); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("Engine.loadOrCreate: persisted document invalid, substituting fresh state",
				"sessionID", sessionID, "error", err)
			return models.NewConversationState(sessionID), nil
		}
		return nil, err
	}
	return st, nil
}

// executeTurn routes and executes the step for this turn. When the router
// lands on intent classification, the detected intent is merged and the turn
// is routed once more so the labeled intent reaches a substantive step.
func (e *Engine) executeTurn(ctx context.Context, st *models.ConversationState, in TurnInput) (*StepResult, error) {
	step := e.router.Route(st)

	if step == models.StepIntentClassification {
		res := e.runStep(ctx, st, step, in)
		if res.Failed() {
			return res, nil
		}
		if res.DetectedIntent != "" {
			st.DetectedIntent = res.DetectedIntent
		}
		step = e.router.Route(st)
		if step == models.StepIntentClassification {
			step = models.StepGeneralAgent
		}
	}

	return e.runStep(ctx, st, step, in), nil
}

func (e *Engine) runStep(ctx context.Context, st *models.ConversationState, step models.Step, in TurnInput) *StepResult {
	exec, ok := Get(step)
	if !ok {
		slog.Error("Engine.runStep: no executor registered", "sessionID", st.SessionID, "step", step)
		return &StepResult{
			Escalate:         true,
			EscalationReason: "no executor registered for step " + string(step),
			LastError:        "unregistered step: " + string(step),
			FailureKind:      FailureKindGeneric,
		}
	}
	return e.retry.Execute(ctx, st.SessionID, step, func(ctx context.Context) (*StepResult, error) {
		return exec.Execute(ctx, st, in)
	})
}

// applyResult merges the step's proposed partial state into the document and
// runs the transition guard and phase enforcement over the outcome.
func (e *Engine) applyResult(st *models.ConversationState, before models.State, res *StepResult) {
	if res.DetectedIntent != "" {
		st.DetectedIntent = models.NormalizeIntent(string(res.DetectedIntent))
	}
	if len(res.SelectedProducts) > 0 {
		st.SelectedProducts = res.SelectedProducts
	}
	if len(res.OfferedProducts) > 0 {
		st.OfferedProducts = res.OfferedProducts
	}
	switch res.LastError {
	case "":
	case lastErrorCleared:
		st.LastError = ""
	default:
		st.LastError = res.LastError
	}
	st.RetryCount = res.Attempts - 1
	if st.RetryCount < 0 {
		st.RetryCount = 0
	}

	proposed := res.ProposedState
	if proposed == "" {
		proposed = before
	}
	gc := st.GuardCounters()
	decision := e.guard.Check(st.SessionID, before, proposed, st.DetectedIntent, st.DialogPhase, gc.StateTurns)
	st.CurrentState = decision.Corrected

	switch {
	case decision.Corrected != proposed:
		// Guard overrode the step; the step's phase no longer applies.
		st.DialogPhase = models.DefaultPhaseFor(decision.Corrected)
	case res.ProposedPhase != "" && models.IsValidPhase(res.ProposedPhase):
		st.DialogPhase = res.ProposedPhase
	case decision.Corrected != before:
		st.DialogPhase = models.DefaultPhaseFor(decision.Corrected)
	}
	EnforcePhaseConsistency(st)

	if res.Escalate {
		st.ShouldEscalate = true
		if res.EscalationReason != "" {
			st.Metadata[models.MetadataKeyEscalationReason] = res.EscalationReason
		}
		st.CurrentState = models.StateComplaint
		st.DialogPhase = models.PhaseComplaint
	}

	if res.Reply != "" {
		st.AppendMessage(models.RoleAssistant, res.Reply)
	} else if res.Failed() {
		st.AppendMessage(models.RoleAssistant, EscalationHandoffMessage)
	}
}

func lastAssistantMessage(st *models.ConversationState) string {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == models.RoleAssistant {
			return st.Messages[i].Content
		}
	}
	return ""
}
