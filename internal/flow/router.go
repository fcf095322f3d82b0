package flow

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// CRMErrorPrefix marks a sticky CRM failure in LastError. While present the
// router short-circuits to the crm_error step so the session apologizes and
// retries the order hand-off instead of continuing the funnel.
const CRMErrorPrefix = "crm:"

// confirmationKeywords are substrings that count as a purchase confirmation
// when the classifier missed the intent. Matched case-insensitively against
// the last user message while an offer is on the table.
var confirmationKeywords = []string{
	"i'll take it", "ill take it", "i want it", "yes please",
	"sounds good", "deal", "buy it", "take it",
}

// Router is the pure, total dispatch function from conversation facts to a
// pipeline step. It holds no state; everything it consults is on the document.
type Router struct{}

// NewRouter creates a Router.
func NewRouter() *Router {
	return &Router{}
}

// Route picks the step for the current turn. Fixed precedence, highest first:
//
//  1. escalated sessions go to escalation (or end once the funnel is closed)
//  2. a complaint intent escalates from any state
//  3. a sticky CRM failure marker routes to crm_error until it clears
//  4. a photo-identification intent or an inbound image with no contrary
//     signal routes to vision from any state
//  5. a (state, phase) table with the documented special cases
//  6. general_agent
func (r *Router) Route(st *models.ConversationState) models.Step {
	step := r.route(st)
	slog.Debug("Router.Route: dispatched",
		"sessionID", st.SessionID, "state", st.CurrentState, "phase", st.DialogPhase,
		"intent", st.DetectedIntent, "step", step)
	return step
}

func (r *Router) route(st *models.ConversationState) models.Step {
	intent := st.DetectedIntent

	if st.ShouldEscalate {
		if st.CurrentState == models.StateEnd {
			return models.StepEnd
		}
		return models.StepEscalation
	}

	if intent == models.IntentComplaint {
		return models.StepEscalation
	}

	if strings.HasPrefix(st.LastError, CRMErrorPrefix) {
		return models.StepCRMError
	}

	if intent == models.IntentPhotoIdentification {
		return models.StepVision
	}
	if st.HasInboundImage() && !intent.IsPaymentIntent() && intent != models.IntentComplaint {
		// A payment-proof screenshot is an image too; the payment sub-flow
		// owns it, not vision. Everything else with an image is a lookup.
		if st.CurrentState != models.StatePaymentDelivery {
			return models.StepVision
		}
	}

	if step, ok := r.routeByStateAndPhase(st, intent); ok {
		return step
	}

	if intent == "" || intent == models.IntentUnknown {
		return models.StepIntentClassification
	}

	return models.StepGeneralAgent
}

func (r *Router) routeByStateAndPhase(st *models.ConversationState, intent models.Intent) (models.Step, bool) {
	switch st.CurrentState {
	case models.StateComplaint:
		return models.StepEscalation, true

	case models.StateOutOfDomain:
		return models.StepGeneralAgent, true

	case models.StatePaymentDelivery:
		return models.StepPayment, true

	case models.StateUpsell:
		return models.StepUpsell, true

	case models.StateSizeColor:
		// Size/color sub-flows stay conversational until the user confirms.
		if intent == models.IntentPurchaseConfirmation {
			return models.StepPayment, true
		}
		return models.StepGeneralAgent, true

	case models.StateOffer:
		if st.DialogPhase == models.PhaseOfferMade {
			if r.offerAccepted(st, intent) {
				return models.StepPayment, true
			}
			return models.StepOffer, true
		}
		return models.StepOffer, true

	case models.StateEnd:
		if st.DialogPhase == models.PhaseCompleted {
			switch intent {
			case models.IntentThanks, models.IntentSmalltalk:
				return models.StepEnd, true
			default:
				// Anything substantive after completion is a fresh
				// conversation; start it from moderation.
				return models.StepModeration, true
			}
		}
		return models.StepEnd, true
	}
	return "", false
}

// offerAccepted checks the three independent payment triggers while an offer
// is on the table: explicit payment intent, a confirmation-keyword substring
// in the last user message, or a mention of an offered product's name.
func (r *Router) offerAccepted(st *models.ConversationState, intent models.Intent) bool {
	if intent.IsPaymentIntent() {
		return true
	}
	text := strings.ToLower(st.LastUserMessage())
	if text == "" {
		return false
	}
	for _, kw := range confirmationKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, p := range st.OfferedProducts {
		if p.Name != "" && strings.Contains(text, strings.ToLower(p.Name)) {
			return true
		}
	}
	return false
}
