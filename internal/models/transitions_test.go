package models

import "testing"

func TestTransitionTableCoversEveryState(t *testing.T) {
	for _, s := range AllStates() {
		candidates := TransitionsFrom(s)
		if len(candidates) == 0 {
			t.Fatalf("state %s has no transitions", s)
		}
		if candidates[0] != s {
			t.Errorf("state %s: expected self-loop first in candidate list, got %s", s, candidates[0])
		}
		found := false
		for _, c := range candidates {
			if c == s {
				found = true
			}
		}
		if !found {
			t.Errorf("state %s has no self-loop", s)
		}
	}
}

func TestNormalizeState(t *testing.T) {
	if got := NormalizeState("bogus"); got != StateInit {
		t.Errorf("expected unknown state to normalize to %s, got %s", StateInit, got)
	}
	if got := NormalizeState(""); got != StateInit {
		t.Errorf("expected empty state to normalize to %s, got %s", StateInit, got)
	}
	for _, s := range AllStates() {
		if got := NormalizeState(string(s)); got != s {
			t.Errorf("expected %s to normalize to itself, got %s", s, got)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		name   string
		from   State
		to     State
		intent Intent
		phase  DialogPhase
		want   bool
	}{
		{"greeting opens discovery", StateInit, StateDiscovery, IntentGreeting, PhaseInit, true},
		{"init never jumps to end", StateInit, StateEnd, IntentGreeting, PhaseInit, false},
		{"self loop allows any intent", StateOffer, StateOffer, IntentSmalltalk, PhaseOfferMade, true},
		{"payment proof with right phase reaches upsell", StatePaymentDelivery, StateUpsell, IntentPaymentProof, PhaseWaitingForPaymentProof, true},
		{"payment proof with wrong phase stays blocked", StatePaymentDelivery, StateUpsell, IntentPaymentProof, PhaseWaitingForPaymentMethod, false},
		{"complaint reachable from discovery", StateDiscovery, StateComplaint, IntentComplaint, PhaseWaitingForNeed, true},
		{"complaint not reachable on smalltalk", StateDiscovery, StateComplaint, IntentSmalltalk, PhaseWaitingForNeed, false},
	}
	for _, tc := range cases {
		if got := IsAllowed(tc.from, tc.to, tc.intent, tc.phase); got != tc.want {
			t.Errorf("%s: IsAllowed(%s, %s, %s, %s) = %v, want %v",
				tc.name, tc.from, tc.to, tc.intent, tc.phase, got, tc.want)
		}
	}
}

func TestSuccessorMapsStayWithinTable(t *testing.T) {
	for _, s := range AllStates() {
		reachable := map[State]bool{s: true}
		for _, c := range TransitionsFrom(s) {
			reachable[c] = true
		}
		if next := NaturalSuccessor(s); !reachable[next] {
			t.Errorf("natural successor of %s is %s, which is not reachable", s, next)
		}
		if next := DefaultSuccessor(s); !reachable[next] {
			t.Errorf("default successor of %s is %s, which is not reachable", s, next)
		}
	}
}

func TestIntentHintTargetsAreValid(t *testing.T) {
	for _, i := range AllIntents() {
		hint, ok := IntentHint(i)
		if !ok {
			continue
		}
		if !IsValidState(hint) {
			t.Errorf("intent %s hints at invalid state %s", i, hint)
		}
	}
	if _, ok := IntentHint(IntentSmalltalk); ok {
		t.Error("smalltalk should carry no state hint")
	}
	if _, ok := IntentHint(IntentUnknown); ok {
		t.Error("unknown should carry no state hint")
	}
}

func TestMaxTurnsForUnknownState(t *testing.T) {
	if got := MaxTurnsFor(State("bogus")); got != MaxTurnsFor(StateInit) {
		t.Errorf("unknown state should use the init cap, got %d", got)
	}
}

func TestPhaseExpectedStateConsistency(t *testing.T) {
	for _, p := range AllPhases() {
		s, ok := p.ExpectedState()
		if !ok {
			t.Fatalf("phase %s has no expected state", p)
		}
		if !IsValidState(s) {
			t.Errorf("phase %s expects invalid state %s", p, s)
		}
	}
	if s, _ := PhaseWaitingForColor.ExpectedState(); s != StateSizeColor {
		t.Errorf("waiting_for_color should expect %s, got %s", StateSizeColor, s)
	}
}

func TestDefaultPhaseForMatchesExpectation(t *testing.T) {
	for _, s := range AllStates() {
		p := DefaultPhaseFor(s)
		if !IsValidPhase(p) {
			t.Fatalf("default phase for %s is invalid: %s", s, p)
		}
		expected, _ := p.ExpectedState()
		if expected != s {
			t.Errorf("default phase %s of state %s maps back to %s", p, s, expected)
		}
	}
}
