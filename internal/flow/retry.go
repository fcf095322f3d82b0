package flow

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/metrics"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Failure kinds attached to a terminal StepResult.
const (
	FailureKindTimeout = "timeout"
	FailureKindGeneric = "generic"
	FailureKindUnsafe  = "unsafe"
)

// StepResult is the partial state a step execution proposes for the turn.
// Zero-valued fields mean "no change"; the engine merges non-zero fields into
// the working document before the guard pass.
type StepResult struct {
	Reply            string
	ProposedState    models.State
	ProposedPhase    models.DialogPhase
	DetectedIntent   models.Intent
	SelectedProducts []models.ProductRef
	OfferedProducts  []models.ProductRef
	Escalate         bool
	EscalationReason string
	LastError        string
	Attempts         int
	FailureKind      string
}

// Failed reports whether the result is a terminal failure produced by the
// retry wrapper rather than a step.
func (r *StepResult) Failed() bool {
	return r.FailureKind != ""
}

// StepFunc is one step invocation. The retry wrapper owns the attempt budget;
// the function must be safe to call up to RetryMaxAttempts times unless the
// step is blacklisted.
type StepFunc func(ctx context.Context) (*StepResult, error)

// unsafeSteps lists steps with irreversible, externally visible side effects.
// These never retry: a duplicate payment charge or order submission is worse
// than an escalation. Keyed by raw step name so internal sub-steps such as
// order_create are covered even though they are not routable.
var unsafeSteps = map[string]bool{
	string(models.StepPayment): true,
	"order_create":             true,
}

// IsUnsafeStep reports whether a step name is on the no-retry blacklist.
func IsUnsafeStep(step models.Step) bool {
	return unsafeSteps[string(step)]
}

// RetryPolicy wraps one step invocation with capped exponential backoff.
// sleep is injectable for tests; nil means time.Sleep.
type RetryPolicy struct {
	cfg   Config
	sleep func(time.Duration)
}

// NewRetryPolicy creates a RetryPolicy from the guard configuration.
func NewRetryPolicy(cfg Config) *RetryPolicy {
	return &RetryPolicy{cfg: cfg, sleep: time.Sleep}
}

// NewRetryPolicyWithSleep creates a RetryPolicy with a custom sleep function.
func NewRetryPolicyWithSleep(cfg Config, sleep func(time.Duration)) *RetryPolicy {
	return &RetryPolicy{cfg: cfg, sleep: sleep}
}

// Execute runs fn under the retry budget. It never returns an error: every
// failure mode is converted into a terminal StepResult with Escalate and
// LastError set, so nothing raises past this wrapper.
//
// Blacklisted steps get exactly one attempt; their first failure escalates
// immediately with an "unsafe operation failed" reason. Retryable steps back
// off with delay = min(base * factor^attempt, max) between attempts and
// escalate once the attempt budget is exhausted.
func (p *RetryPolicy) Execute(ctx context.Context, sessionID string, step models.Step, fn StepFunc) *StepResult {
	if IsUnsafeStep(step) {
		res, err := fn(ctx)
		if err == nil {
			if res == nil {
				res = &StepResult{}
			}
			res.Attempts = 1
			return res
		}
		slog.Error("RetryPolicy.Execute: unsafe step failed, escalating without retry",
			"sessionID", sessionID, "step", step, "error", err)
		metrics.Escalations.WithLabelValues("unsafe_step").Inc()
		return &StepResult{
			Escalate:         true,
			EscalationReason: "unsafe operation failed: " + string(step),
			LastError:        err.Error(),
			Attempts:         1,
			FailureKind:      FailureKindUnsafe,
		}
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.RetryMaxAttempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			if res == nil {
				res = &StepResult{}
			}
			res.Attempts = attempt + 1
			return res
		}
		lastErr = err

		kind := classifyFailure(err)
		if attempt+1 < p.cfg.RetryMaxAttempts {
			delay := p.backoff(attempt)
			metrics.RetryAttempts.WithLabelValues(string(step)).Inc()
			slog.Warn("RetryPolicy.Execute: step failed, retrying",
				"sessionID", sessionID, "step", step, "attempt", attempt+1,
				"kind", kind, "delay", delay, "error", err)
			p.sleep(delay)
		}
	}

	kind := classifyFailure(lastErr)
	slog.Error("RetryPolicy.Execute: retry budget exhausted, escalating",
		"sessionID", sessionID, "step", step, "attempts", p.cfg.RetryMaxAttempts,
		"kind", kind, "error", lastErr)
	metrics.Escalations.WithLabelValues("retry_exhausted").Inc()
	return &StepResult{
		Escalate:         true,
		EscalationReason: "step failed after retries: " + string(step),
		LastError:        lastErr.Error(),
		Attempts:         p.cfg.RetryMaxAttempts,
		FailureKind:      kind,
	}
}

// backoff computes the delay before the next attempt: base * factor^attempt,
// capped at the configured maximum.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.cfg.RetryBaseDelay) * math.Pow(p.cfg.RetryFactor, float64(attempt)))
	if d > p.cfg.RetryMaxDelay || d <= 0 {
		return p.cfg.RetryMaxDelay
	}
	return d
}

func classifyFailure(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureKindTimeout
	}
	return FailureKindGeneric
}
