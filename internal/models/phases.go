package models

// DialogPhase is the fine-grained sub-stage within a funnel state. Each phase
// maps to exactly one expected State; PhaseComplaint and PhaseOutOfDomain are
// self-owning and override whatever phase an upstream step proposed.
type DialogPhase string

// Dialog phase constants.
const (
	PhaseInit                    DialogPhase = "init"
	PhaseWaitingForNeed          DialogPhase = "waiting_for_need"
	PhaseWaitingForPhoto         DialogPhase = "waiting_for_photo"
	PhaseWaitingForSize          DialogPhase = "waiting_for_size"
	PhaseWaitingForColor         DialogPhase = "waiting_for_color"
	PhaseOfferMade               DialogPhase = "offer_made"
	PhaseWaitingForPaymentMethod DialogPhase = "waiting_for_payment_method"
	PhaseWaitingForPaymentProof  DialogPhase = "waiting_for_payment_proof"
	PhaseDeliveryPending         DialogPhase = "delivery_pending"
	PhaseUpsellOffered           DialogPhase = "upsell_offered"
	PhaseCompleted               DialogPhase = "completed"
	PhaseComplaint               DialogPhase = "complaint"
	PhaseOutOfDomain             DialogPhase = "out_of_domain"
)

// phaseExpectedState maps every known phase to the single funnel state it
// belongs to. Keeping the mapping on the phase type (instead of scattered
// string tables) closes off the typo bug class.
var phaseExpectedState = map[DialogPhase]State{
	PhaseInit:                    StateInit,
	PhaseWaitingForNeed:          StateDiscovery,
	PhaseWaitingForPhoto:         StateVision,
	PhaseWaitingForSize:          StateSizeColor,
	PhaseWaitingForColor:         StateSizeColor,
	PhaseOfferMade:               StateOffer,
	PhaseWaitingForPaymentMethod: StatePaymentDelivery,
	PhaseWaitingForPaymentProof:  StatePaymentDelivery,
	PhaseDeliveryPending:         StatePaymentDelivery,
	PhaseUpsellOffered:           StateUpsell,
	PhaseCompleted:               StateEnd,
	PhaseComplaint:               StateComplaint,
	PhaseOutOfDomain:             StateOutOfDomain,
}

// selfOwningPhase maps the two escalation states to the phase they force.
var selfOwningPhase = map[State]DialogPhase{
	StateComplaint:   PhaseComplaint,
	StateOutOfDomain: PhaseOutOfDomain,
}

// defaultPhase is the entry phase for each funnel state, used when a guard
// correction moves the conversation to a state the upstream step did not
// propose a phase for.
var defaultPhase = map[State]DialogPhase{
	StateInit:            PhaseInit,
	StateDiscovery:       PhaseWaitingForNeed,
	StateVision:          PhaseWaitingForPhoto,
	StateSizeColor:       PhaseWaitingForSize,
	StateOffer:           PhaseOfferMade,
	StatePaymentDelivery: PhaseWaitingForPaymentMethod,
	StateUpsell:          PhaseUpsellOffered,
	StateEnd:             PhaseCompleted,
	StateComplaint:       PhaseComplaint,
	StateOutOfDomain:     PhaseOutOfDomain,
}

// DefaultPhaseFor returns the entry phase of a funnel state.
func DefaultPhaseFor(s State) DialogPhase {
	if p, ok := defaultPhase[NormalizeState(string(s))]; ok {
		return p
	}
	return PhaseInit
}

// AllPhases returns the closed dialog phase domain.
func AllPhases() []DialogPhase {
	return []DialogPhase{
		PhaseInit, PhaseWaitingForNeed, PhaseWaitingForPhoto,
		PhaseWaitingForSize, PhaseWaitingForColor, PhaseOfferMade,
		PhaseWaitingForPaymentMethod, PhaseWaitingForPaymentProof,
		PhaseDeliveryPending, PhaseUpsellOffered, PhaseCompleted,
		PhaseComplaint, PhaseOutOfDomain,
	}
}

// IsValidPhase checks whether p is part of the closed phase domain.
func IsValidPhase(p DialogPhase) bool {
	_, ok := phaseExpectedState[p]
	return ok
}

// ExpectedState returns the funnel state p belongs to. Unknown phases report
// StateInit and false.
func (p DialogPhase) ExpectedState() (State, bool) {
	s, ok := phaseExpectedState[p]
	if !ok {
		return StateInit, false
	}
	return s, true
}

// IsSelfOwning reports whether p is one of the two escalation phases that
// must never be rerouted by phase consistency enforcement.
func (p DialogPhase) IsSelfOwning() bool {
	return p == PhaseComplaint || p == PhaseOutOfDomain
}

// SelfOwningPhaseFor returns the forced phase for an escalation state, if s
// owns one.
func SelfOwningPhaseFor(s State) (DialogPhase, bool) {
	p, ok := selfOwningPhase[s]
	return p, ok
}
