package flow

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Deployments without a payment integration register the payment step with a
// nil provider. Reaching it must escalate, not panic.
func TestPaymentExecutorWithoutProviderEscalates(t *testing.T) {
	RegisterDefaultExecutors(nil, nil, nil)
	exec, ok := Get(models.StepPayment)
	if !ok {
		t.Fatal("payment step not registered")
	}

	policy := NewRetryPolicyWithSleep(DefaultConfig(), func(time.Duration) {})

	phases := []models.DialogPhase{
		models.PhaseWaitingForPaymentMethod,
		models.PhaseWaitingForPaymentProof,
	}
	for _, phase := range phases {
		st := models.NewConversationState("s1")
		st.CurrentState = models.StatePaymentDelivery
		st.DialogPhase = phase
		st.SelectedProducts = []models.ProductRef{{ID: "p1", Name: "Denim Jacket"}}

		res := policy.Execute(context.Background(), "s1", models.StepPayment, func(ctx context.Context) (*StepResult, error) {
			return exec.Execute(ctx, st, TurnInput{UserText: "here you go"})
		})

		if !res.Escalate {
			t.Errorf("phase %s: nil provider must escalate", phase)
		}
		if res.EscalationReason == "" {
			t.Errorf("phase %s: expected an escalation reason", phase)
		}
		if res.Reply == "" {
			t.Errorf("phase %s: customer should still get a reply", phase)
		}
	}
}
