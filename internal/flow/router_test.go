package flow

import (
	"testing"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

func TestRouterTotality(t *testing.T) {
	r := NewRouter()
	intents := append(models.AllIntents(), models.Intent(""))
	for _, s := range models.AllStates() {
		for _, p := range models.AllPhases() {
			for _, i := range intents {
				st := models.NewConversationState("s1")
				st.CurrentState = s
				st.DialogPhase = p
				st.DetectedIntent = i
				step := r.Route(st)
				if !models.IsValidStep(step) {
					t.Fatalf("route(%s, %s, %s) returned unknown step %q", s, p, i, step)
				}
			}
		}
	}
}

func TestRouterComplaintEscalatesFromEveryState(t *testing.T) {
	r := NewRouter()
	for _, s := range models.AllStates() {
		st := models.NewConversationState("s1")
		st.CurrentState = s
		st.DialogPhase = models.DefaultPhaseFor(s)
		st.DetectedIntent = models.IntentComplaint
		if step := r.Route(st); step != models.StepEscalation {
			t.Errorf("complaint at %s should escalate, got %s", s, step)
		}
	}
}

func TestRouterEscalatedSession(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StateOffer
	st.ShouldEscalate = true
	if step := r.Route(st); step != models.StepEscalation {
		t.Errorf("escalated session should route to escalation, got %s", step)
	}

	st.CurrentState = models.StateEnd
	if step := r.Route(st); step != models.StepEnd {
		t.Errorf("escalated session at END should route to end, got %s", step)
	}

	// Escalation outranks the global image rule.
	st = models.NewConversationState("s1")
	st.CurrentState = models.StateDiscovery
	st.ShouldEscalate = true
	st.AppendMessage(models.RoleUser, "look", models.Attachment{Kind: "image"})
	if step := r.Route(st); step != models.StepEscalation {
		t.Errorf("escalation must outrank vision, got %s", step)
	}
}

func TestRouterStickyCRMError(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StatePaymentDelivery
	st.DialogPhase = models.PhaseDeliveryPending
	st.DetectedIntent = models.IntentOrderStatus
	st.LastError = CRMErrorPrefix + "submit failed"
	if step := r.Route(st); step != models.StepCRMError {
		t.Errorf("sticky CRM marker should route to crm_error, got %s", step)
	}
}

func TestRouterVisionGlobal(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StateDiscovery
	st.DialogPhase = models.PhaseWaitingForNeed
	st.DetectedIntent = models.IntentPhotoIdentification
	if step := r.Route(st); step != models.StepVision {
		t.Errorf("photo intent should route to vision, got %s", step)
	}

	st = models.NewConversationState("s1")
	st.CurrentState = models.StateSizeColor
	st.DialogPhase = models.PhaseWaitingForSize
	st.DetectedIntent = models.IntentSizeHelp
	st.AppendMessage(models.RoleUser, "this one", models.Attachment{Kind: "image"})
	if step := r.Route(st); step != models.StepVision {
		t.Errorf("inbound image with no contrary signal should route to vision, got %s", step)
	}
}

func TestRouterPaymentProofImageStaysInPayment(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StatePaymentDelivery
	st.DialogPhase = models.PhaseWaitingForPaymentProof
	st.DetectedIntent = models.IntentPaymentProof
	st.AppendMessage(models.RoleUser, "here is the receipt", models.Attachment{Kind: "image"})
	if step := r.Route(st); step != models.StepPayment {
		t.Errorf("payment proof screenshot belongs to payment, got %s", step)
	}
}

func TestRouterOfferMadeTriggers(t *testing.T) {
	r := NewRouter()

	base := func() *models.ConversationState {
		st := models.NewConversationState("s1")
		st.CurrentState = models.StateOffer
		st.DialogPhase = models.PhaseOfferMade
		st.OfferedProducts = []models.ProductRef{{ID: "p1", Name: "Denim Jacket"}}
		return st
	}

	st := base()
	st.DetectedIntent = models.IntentPurchaseConfirmation
	if step := r.Route(st); step != models.StepPayment {
		t.Errorf("explicit payment intent should trigger payment, got %s", step)
	}

	st = base()
	st.DetectedIntent = models.IntentSmalltalk
	st.AppendMessage(models.RoleUser, "ok, I'll take it")
	if step := r.Route(st); step != models.StepPayment {
		t.Errorf("confirmation keyword should trigger payment, got %s", step)
	}

	st = base()
	st.DetectedIntent = models.IntentSmalltalk
	st.AppendMessage(models.RoleUser, "the denim jacket looks great")
	if step := r.Route(st); step != models.StepPayment {
		t.Errorf("offered product mention should trigger payment, got %s", step)
	}

	st = base()
	st.DetectedIntent = models.IntentSmalltalk
	st.AppendMessage(models.RoleUser, "hmm let me think")
	if step := r.Route(st); step != models.StepOffer {
		t.Errorf("no trigger should stay on offer, got %s", step)
	}
}

func TestRouterCompletedPhase(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StateEnd
	st.DialogPhase = models.PhaseCompleted
	st.DetectedIntent = models.IntentThanks
	if step := r.Route(st); step != models.StepEnd {
		t.Errorf("thanks after completion should route to end, got %s", step)
	}

	st.DetectedIntent = models.IntentProductQuestion
	if step := r.Route(st); step != models.StepModeration {
		t.Errorf("substantive message after completion re-enters moderation, got %s", step)
	}
}

func TestRouterUnknownIntentClassifies(t *testing.T) {
	r := NewRouter()
	st := models.NewConversationState("s1")
	st.CurrentState = models.StateDiscovery
	st.DialogPhase = models.PhaseWaitingForNeed
	st.DetectedIntent = ""
	if step := r.Route(st); step != models.StepIntentClassification {
		t.Errorf("empty intent should classify first, got %s", step)
	}

	st.DetectedIntent = models.IntentUnknown
	if step := r.Route(st); step != models.StepIntentClassification {
		t.Errorf("unknown intent should classify first, got %s", step)
	}
}
