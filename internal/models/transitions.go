package models

// TransitionRule is one allowed edge out of a funnel state. Intents narrows
// the edge to specific detected intents (empty means any intent) and Phases
// narrows it to specific dialog phases (empty means any phase).
type TransitionRule struct {
	To      State
	Intents []Intent
	Phases  []DialogPhase
}

// transitionTable is the canonical static transition table. Rule order per
// state is significant: it doubles as the deterministically ordered candidate
// list the guard falls back to, so keep self-loops first and escalation edges
// last. Every state carries its own self-loop.
var transitionTable = map[State][]TransitionRule{
	StateInit: {
		{To: StateInit},
		{To: StateDiscovery, Intents: []Intent{IntentGreeting, IntentDiscoveryQuestion, IntentProductQuestion, IntentSmalltalk, IntentUnknown}},
		{To: StateVision, Intents: []Intent{IntentPhotoIdentification}},
		{To: StateSizeColor, Intents: []Intent{IntentSizeHelp, IntentColorHelp, IntentFitQuestion}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateDiscovery: {
		{To: StateDiscovery},
		{To: StateVision, Intents: []Intent{IntentPhotoIdentification}},
		{To: StateSizeColor, Intents: []Intent{IntentSizeHelp, IntentColorHelp, IntentFitQuestion}},
		{To: StateOffer, Intents: []Intent{IntentPriceQuestion, IntentPurchaseConfirmation}},
		{To: StateEnd, Intents: []Intent{IntentThanks}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateVision: {
		{To: StateVision},
		{To: StateSizeColor, Intents: []Intent{IntentSizeHelp, IntentColorHelp, IntentFitQuestion}},
		{To: StateOffer, Intents: []Intent{IntentPriceQuestion, IntentPurchaseConfirmation}},
		{To: StateDiscovery, Intents: []Intent{IntentDiscoveryQuestion, IntentProductQuestion}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateSizeColor: {
		{To: StateSizeColor},
		{To: StateOffer, Intents: []Intent{IntentPriceQuestion, IntentPurchaseConfirmation}},
		{To: StateVision, Intents: []Intent{IntentPhotoIdentification}},
		{To: StateDiscovery, Intents: []Intent{IntentDiscoveryQuestion, IntentProductQuestion}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateOffer: {
		{To: StateOffer},
		{To: StatePaymentDelivery, Intents: []Intent{IntentPurchaseConfirmation, IntentPaymentMethod, IntentPaymentProof, IntentDeliveryQuestion}},
		{To: StateSizeColor, Intents: []Intent{IntentSizeHelp, IntentColorHelp, IntentFitQuestion}},
		{To: StateDiscovery, Intents: []Intent{IntentDiscoveryQuestion, IntentProductQuestion}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StatePaymentDelivery: {
		{To: StatePaymentDelivery},
		{To: StateUpsell, Intents: []Intent{IntentPaymentProof}, Phases: []DialogPhase{PhaseWaitingForPaymentProof}},
		{To: StateEnd, Intents: []Intent{IntentThanks}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateUpsell: {
		{To: StateUpsell},
		{To: StatePaymentDelivery, Intents: []Intent{IntentUpsellAccept, IntentPurchaseConfirmation}},
		{To: StateEnd, Intents: []Intent{IntentUpsellDecline, IntentThanks}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateEnd: {
		{To: StateEnd},
		{To: StateDiscovery, Intents: []Intent{IntentGreeting, IntentDiscoveryQuestion, IntentProductQuestion}},
		{To: StateComplaint, Intents: []Intent{IntentComplaint}},
		{To: StateOutOfDomain, Intents: []Intent{IntentOutOfDomain}},
	},
	StateComplaint: {
		{To: StateComplaint},
		{To: StateEnd, Intents: []Intent{IntentThanks}},
	},
	StateOutOfDomain: {
		{To: StateOutOfDomain},
		{To: StateDiscovery, Intents: []Intent{IntentGreeting, IntentDiscoveryQuestion, IntentProductQuestion}},
		{To: StateEnd, Intents: []Intent{IntentThanks}},
	},
}

// intentHint suggests a target state for intents that strongly imply one.
// Intents without an entry (smalltalk, unknown) carry no hint.
var intentHint = map[Intent]State{
	IntentGreeting:             StateDiscovery,
	IntentDiscoveryQuestion:    StateDiscovery,
	IntentProductQuestion:      StateDiscovery,
	IntentPhotoIdentification:  StateVision,
	IntentSizeHelp:             StateSizeColor,
	IntentColorHelp:            StateSizeColor,
	IntentFitQuestion:          StateSizeColor,
	IntentPriceQuestion:        StateOffer,
	IntentPurchaseConfirmation: StatePaymentDelivery,
	IntentPaymentMethod:        StatePaymentDelivery,
	IntentPaymentProof:         StatePaymentDelivery,
	IntentDeliveryQuestion:     StatePaymentDelivery,
	IntentOrderStatus:          StatePaymentDelivery,
	IntentComplaint:            StateComplaint,
	IntentThanks:               StateEnd,
	IntentUpsellAccept:         StatePaymentDelivery,
	IntentUpsellDecline:        StateEnd,
	IntentOutOfDomain:          StateOutOfDomain,
}

// stateMaxTurns caps how many consecutive turns a session may spend in one
// state before the guard forces the natural progression successor.
var stateMaxTurns = map[State]int{
	StateInit:            3,
	StateDiscovery:       5,
	StateVision:          3,
	StateSizeColor:       4,
	StateOffer:           4,
	StatePaymentDelivery: 5,
	StateUpsell:          3,
	StateEnd:             3,
	StateComplaint:       5,
	StateOutOfDomain:     3,
}

// naturalSuccessor is the forced next stage once a state exhausts its turn
// cap. Terminal and escalation states progress onto themselves.
var naturalSuccessor = map[State]State{
	StateInit:            StateDiscovery,
	StateDiscovery:       StateOffer,
	StateVision:          StateSizeColor,
	StateSizeColor:       StateOffer,
	StateOffer:           StatePaymentDelivery,
	StatePaymentDelivery: StateUpsell,
	StateUpsell:          StateEnd,
	StateEnd:             StateEnd,
	StateComplaint:       StateComplaint,
	StateOutOfDomain:     StateDiscovery,
}

// defaultProgression is the last-resort successor map when no other guard
// rule produced a target. It funnels everything back toward discovery.
var defaultProgression = map[State]State{
	StateInit:            StateDiscovery,
	StateDiscovery:       StateDiscovery,
	StateVision:          StateDiscovery,
	StateSizeColor:       StateDiscovery,
	StateOffer:           StateOffer,
	StatePaymentDelivery: StatePaymentDelivery,
	StateUpsell:          StateEnd,
	StateEnd:             StateEnd,
	StateComplaint:       StateComplaint,
	StateOutOfDomain:     StateDiscovery,
}

// TransitionsFrom returns the deterministically ordered candidate states
// reachable from s, including the self-loop, with duplicates removed.
func TransitionsFrom(s State) []State {
	rules := transitionTable[NormalizeState(string(s))]
	seen := make(map[State]bool, len(rules))
	out := make([]State, 0, len(rules))
	for _, r := range rules {
		if !seen[r.To] {
			seen[r.To] = true
			out = append(out, r.To)
		}
	}
	return out
}

// IsAllowed reports whether the edge from→to is permitted for the given
// intent and phase under the static table.
func IsAllowed(from, to State, intent Intent, phase DialogPhase) bool {
	for _, r := range transitionTable[NormalizeState(string(from))] {
		if r.To != to {
			continue
		}
		if !intentMatches(r.Intents, intent) {
			continue
		}
		if !phaseMatches(r.Phases, phase) {
			continue
		}
		return true
	}
	return false
}

func intentMatches(allowed []Intent, intent Intent) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == intent {
			return true
		}
	}
	return false
}

func phaseMatches(allowed []DialogPhase, phase DialogPhase) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == phase {
			return true
		}
	}
	return false
}

// IntentHint returns the suggested target state for an intent, if one exists.
func IntentHint(i Intent) (State, bool) {
	s, ok := intentHint[i]
	return s, ok
}

// MaxTurnsFor returns the consecutive-turn cap for a state.
func MaxTurnsFor(s State) int {
	if n, ok := stateMaxTurns[NormalizeState(string(s))]; ok {
		return n
	}
	return 3
}

// NaturalSuccessor returns the forced progression target once a state
// exhausts its turn cap.
func NaturalSuccessor(s State) State {
	if next, ok := naturalSuccessor[NormalizeState(string(s))]; ok {
		return next
	}
	return StateDiscovery
}

// DefaultSuccessor returns the hardcoded default-progression target used as
// the guard's final fallback.
func DefaultSuccessor(s State) State {
	if next, ok := defaultProgression[NormalizeState(string(s))]; ok {
		return next
	}
	return StateDiscovery
}
