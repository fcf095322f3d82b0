package models

import "testing"

func TestConversationStateValidate(t *testing.T) {
	st := NewConversationState("session-1")
	if err := st.Validate(); err != nil {
		t.Fatalf("fresh state should validate, got %v", err)
	}

	st.SessionID = ""
	if err := st.Validate(); err == nil {
		t.Error("expected validation error for missing session id")
	}

	st = NewConversationState("session-1")
	st.Messages = nil
	if err := st.Validate(); err == nil {
		t.Error("expected validation error for nil messages")
	}

	st = NewConversationState("session-1")
	st.AppendMessage("robot", "beep")
	if err := st.Validate(); err == nil {
		t.Error("expected validation error for unknown role")
	}

	st = NewConversationState("session-1")
	st.RetryCount = -1
	if err := st.Validate(); err == nil {
		t.Error("expected validation error for negative retry count")
	}
}

func TestConversationStateValidateAllowsUnknownState(t *testing.T) {
	// Out-of-domain state values are a normalization concern, not a
	// validation failure.
	st := NewConversationState("session-1")
	st.CurrentState = State("bogus")
	if err := st.Validate(); err != nil {
		t.Fatalf("unknown state should pass validation, got %v", err)
	}
	st.Normalize()
	if st.CurrentState != StateInit {
		t.Errorf("expected normalization to %s, got %s", StateInit, st.CurrentState)
	}
}

func TestNormalizeResetsUnknownPhase(t *testing.T) {
	st := NewConversationState("session-1")
	st.CurrentState = StateOffer
	st.DialogPhase = DialogPhase("mystery")
	st.Normalize()
	if st.CurrentState != StateInit || st.DialogPhase != PhaseInit {
		t.Errorf("expected init/init after unknown phase, got %s/%s", st.CurrentState, st.DialogPhase)
	}
}

func TestGuardCountersRoundTrip(t *testing.T) {
	st := NewConversationState("session-1")
	gc := st.GuardCounters()
	if gc.TurnCount != 0 || gc.StagnantTurns != 0 {
		t.Fatalf("expected zeroed counters, got %+v", gc)
	}

	gc = GuardCounters{LastFingerprint: "abc", StagnantTurns: 3, TurnCount: 17, StateTurns: 2}
	st.SetGuardCounters(gc)
	got := st.GuardCounters()
	if got != gc {
		t.Errorf("counters did not round-trip: got %+v, want %+v", got, gc)
	}
}

func TestGuardCountersCorruptMetadata(t *testing.T) {
	st := NewConversationState("session-1")
	st.Metadata[MetadataKeyLoopGuard] = "{not json"
	if got := st.GuardCounters(); got != (GuardCounters{}) {
		t.Errorf("corrupt counters should decode to zero, got %+v", got)
	}
}

func TestHasInboundImage(t *testing.T) {
	st := NewConversationState("session-1")
	st.AppendMessage(RoleUser, "look at this", Attachment{Kind: "image", URL: "https://example.com/p.jpg"})
	if !st.HasInboundImage() {
		t.Error("expected inbound image to be detected")
	}

	st.AppendMessage(RoleAssistant, "nice jacket")
	st.AppendMessage(RoleUser, "what sizes do you have?")
	if st.HasInboundImage() {
		t.Error("image on an older message should not count for the current turn")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	st := NewConversationState("session-1")
	st.AppendMessage(RoleUser, "hello")
	st.SelectedProducts = []ProductRef{{ID: "p1", Name: "Denim Jacket"}}
	st.Metadata["k"] = "v"

	cp := st.Clone()
	cp.AppendMessage(RoleUser, "more")
	cp.Metadata["k"] = "changed"
	cp.SelectedProducts[0].ID = "p2"

	if len(st.Messages) != 1 {
		t.Errorf("clone mutation leaked into original messages: %d", len(st.Messages))
	}
	if st.Metadata["k"] != "v" {
		t.Errorf("clone mutation leaked into original metadata: %s", st.Metadata["k"])
	}
	if st.SelectedProducts[0].ID != "p1" {
		t.Errorf("clone mutation leaked into original products: %s", st.SelectedProducts[0].ID)
	}
}
