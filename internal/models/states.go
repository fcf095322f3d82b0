// Package models defines the closed state, intent and phase domains for the
// SalesPipe sales funnel, the static transition table, and the persisted
// per-session conversation document shared across modules.
package models

// State represents a coarse funnel stage of a sales conversation.
type State string

// Funnel state constants.
const (
	// StateInit is the entry state for every new session.
	StateInit State = "INIT"
	// StateDiscovery covers need-finding and product questions.
	StateDiscovery State = "DISCOVERY"
	// StateVision covers photo-based product identification.
	StateVision State = "VISION"
	// StateSizeColor covers size, color and fit sub-flows.
	StateSizeColor State = "SIZE_COLOR"
	// StateOffer covers a concrete product offer on the table.
	StateOffer State = "OFFER"
	// StatePaymentDelivery covers payment method, proof and delivery.
	StatePaymentDelivery State = "PAYMENT_DELIVERY"
	// StateUpsell covers the post-purchase upsell attempt.
	StateUpsell State = "UPSELL"
	// StateEnd is the closed-conversation state.
	StateEnd State = "END"
	// StateComplaint is the safety-critical complaint escalation state.
	StateComplaint State = "COMPLAINT"
	// StateOutOfDomain holds conversations outside the retail domain.
	StateOutOfDomain State = "OUT_OF_DOMAIN"
)

// AllStates returns every state in the funnel, in funnel order.
func AllStates() []State {
	return []State{
		StateInit, StateDiscovery, StateVision, StateSizeColor, StateOffer,
		StatePaymentDelivery, StateUpsell, StateEnd, StateComplaint, StateOutOfDomain,
	}
}

// IsValidState checks whether s is part of the closed state domain.
func IsValidState(s State) bool {
	switch s {
	case StateInit, StateDiscovery, StateVision, StateSizeColor, StateOffer,
		StatePaymentDelivery, StateUpsell, StateEnd, StateComplaint, StateOutOfDomain:
		return true
	default:
		return false
	}
}

// NormalizeState maps a raw persisted value onto the closed state domain.
// Unrecognized values normalize to StateInit rather than failing the turn.
func NormalizeState(raw string) State {
	s := State(raw)
	if IsValidState(s) {
		return s
	}
	return StateInit
}

// RequiresEscalation reports whether reaching s must hand the conversation
// to a human operator.
func (s State) RequiresEscalation() bool {
	return s == StateComplaint || s == StateOutOfDomain
}
