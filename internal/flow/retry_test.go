package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

func noSleepPolicy(cfg Config) (*RetryPolicy, *[]time.Duration) {
	var delays []time.Duration
	p := NewRetryPolicyWithSleep(cfg, func(d time.Duration) { delays = append(delays, d) })
	return p, &delays
}

func TestRetryBlacklistedStepNeverRetries(t *testing.T) {
	p, delays := noSleepPolicy(DefaultConfig())

	calls := 0
	res := p.Execute(context.Background(), "s1", models.StepPayment, func(ctx context.Context) (*StepResult, error) {
		calls++
		return nil, errors.New("charge failed")
	})

	if calls != 1 {
		t.Fatalf("blacklisted step must get exactly one attempt, got %d", calls)
	}
	if !res.Escalate {
		t.Error("blacklisted step failure must escalate")
	}
	if !strings.Contains(res.EscalationReason, "unsafe operation") {
		t.Errorf("escalation reason should mention unsafe operation, got %q", res.EscalationReason)
	}
	if res.LastError == "" {
		t.Error("expected last_error populated")
	}
	if len(*delays) != 0 {
		t.Errorf("blacklisted step must not back off, slept %v", *delays)
	}
}

func TestRetryExhaustionEscalates(t *testing.T) {
	cfg := DefaultConfig()
	p, delays := noSleepPolicy(cfg)

	calls := 0
	res := p.Execute(context.Background(), "s1", models.StepGeneralAgent, func(ctx context.Context) (*StepResult, error) {
		calls++
		return nil, errors.New("model unavailable")
	})

	if calls != cfg.RetryMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.RetryMaxAttempts, calls)
	}
	if !res.Escalate {
		t.Error("exhausted retries must escalate")
	}
	if res.FailureKind != FailureKindGeneric {
		t.Errorf("expected generic failure kind, got %s", res.FailureKind)
	}
	if res.Attempts != cfg.RetryMaxAttempts {
		t.Errorf("expected attempts recorded as %d, got %d", cfg.RetryMaxAttempts, res.Attempts)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("backoff %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	p, _ := noSleepPolicy(DefaultConfig())

	calls := 0
	res := p.Execute(context.Background(), "s1", models.StepGeneralAgent, func(ctx context.Context) (*StepResult, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("flaky")
		}
		return &StepResult{Reply: "here you go"}, nil
	})

	if res.Escalate {
		t.Error("eventual success must not escalate")
	}
	if res.Reply != "here you go" {
		t.Errorf("expected step reply, got %q", res.Reply)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", res.Attempts)
	}
}

func TestRetryTimeoutClassification(t *testing.T) {
	p, _ := noSleepPolicy(DefaultConfig())

	res := p.Execute(context.Background(), "s1", models.StepVision, func(ctx context.Context) (*StepResult, error) {
		return nil, context.DeadlineExceeded
	})
	if res.FailureKind != FailureKindTimeout {
		t.Errorf("deadline exceeded should classify as timeout, got %s", res.FailureKind)
	}
}

func TestRetryBackoffCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 7
	p, delays := noSleepPolicy(cfg)

	p.Execute(context.Background(), "s1", models.StepGeneralAgent, func(ctx context.Context) (*StepResult, error) {
		return nil, errors.New("down")
	})

	for i, d := range *delays {
		if d > cfg.RetryMaxDelay {
			t.Errorf("backoff %d exceeds cap: %v > %v", i, d, cfg.RetryMaxDelay)
		}
	}
	last := (*delays)[len(*delays)-1]
	if last != cfg.RetryMaxDelay {
		t.Errorf("late backoffs should saturate at %v, got %v", cfg.RetryMaxDelay, last)
	}
}

func TestUnsafeStepNames(t *testing.T) {
	if !IsUnsafeStep(models.StepPayment) {
		t.Error("payment must be blacklisted")
	}
	if !IsUnsafeStep(models.Step("order_create")) {
		t.Error("order_create must be blacklisted")
	}
	if IsUnsafeStep(models.StepGeneralAgent) {
		t.Error("general_agent must be retryable")
	}
}
