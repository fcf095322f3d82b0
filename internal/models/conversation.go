package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Reserved metadata keys. MetadataKeyLoopGuard nests the serialized
// GuardCounters inside the metadata map so the counters survive restarts
// with the session document instead of living in process memory.
const (
	MetadataKeyLoopGuard        = "loop_guard"
	MetadataKeyEscalationReason = "escalation_reason"
)

// Loop-guard error markers stamped into LastError. The soft-recovery marker
// is recoverable and is cleared at the start of the next turn; the
// escalation marker is terminal for the session.
const (
	LastErrorSoftRecovery = "loop_guard_soft_recovery"
	LastErrorEscalation   = "loop_guard_escalation"
)

// Attachment is an optional media payload carried by a message. Data holds
// inline base64 content and is dropped by checkpoint compaction; URL survives.
type Attachment struct {
	Kind string `json:"kind"` // "image", "audio", "document"
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// Message is a single entry in the capped conversation history.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ProductRef references a catalog product selected or offered during the
// conversation.
type ProductRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price_cents,omitempty"`
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// CustomerProfile holds the small set of customer fields that participate in
// the progress fingerprint.
type CustomerProfile struct {
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	PreferredSize  string `json:"preferred_size,omitempty"`
	PreferredColor string `json:"preferred_color,omitempty"`
	ShippingCity   string `json:"shipping_city,omitempty"`
}

// GuardCounters is the per-session loop-guard bookkeeping embedded in the
// persisted document. TurnCount is monotonic and never resets; StagnantTurns
// resets to zero the instant a turn changes the progress fingerprint;
// StateTurns counts consecutive turns spent in the current funnel state.
type GuardCounters struct {
	LastFingerprint string `json:"last_fingerprint,omitempty"`
	StagnantTurns   int    `json:"stagnant_turns"`
	TurnCount       int    `json:"turn_count"`
	StateTurns      int    `json:"state_turns"`
}

// ConversationState is the per-session aggregate persisted after every turn.
// Saving it is the atomic commit unit for a turn: if the save never happens,
// the turn leaves no trace.
type ConversationState struct {
	SessionID        string            `json:"session_id"`
	Messages         []Message         `json:"messages"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CurrentState     State             `json:"current_state"`
	DialogPhase      DialogPhase       `json:"dialog_phase"`
	DetectedIntent   Intent            `json:"detected_intent,omitempty"`
	SelectedProducts []ProductRef      `json:"selected_products,omitempty"`
	OfferedProducts  []ProductRef      `json:"offered_products,omitempty"`
	Customer         CustomerProfile   `json:"customer,omitempty"`
	RetryCount       int               `json:"retry_count"`
	ShouldEscalate   bool              `json:"should_escalate"`
	LastError        string            `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewConversationState creates the initial document for a session. It is the
// substitute the runtime falls back to when a persisted document fails
// validation.
func NewConversationState(sessionID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SessionID:    sessionID,
		Messages:     []Message{},
		Metadata:     map[string]string{},
		CurrentState: StateInit,
		DialogPhase:  PhaseInit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidationError describes a malformed persisted document. It is fatal to
// the turn; the caller must substitute a fresh initial state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid conversation state: field %q %s", e.Field, e.Reason)
}

// Validate checks the structural invariants of a persisted document. State
// and phase values outside their domains are normalization concerns, not
// validation failures; Validate only rejects documents the guard layer
// cannot repair.
func (c *ConversationState) Validate() error {
	if c.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "is required"}
	}
	if c.Messages == nil {
		return &ValidationError{Field: "messages", Reason: "is required"}
	}
	for i, m := range c.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return &ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: fmt.Sprintf("has unknown value %q", m.Role)}
		}
	}
	if c.RetryCount < 0 {
		return &ValidationError{Field: "retry_count", Reason: "must not be negative"}
	}
	return nil
}

// Normalize snaps state, phase and intent onto their closed domains. It is
// applied after load so downstream logic never sees raw values.
func (c *ConversationState) Normalize() {
	c.CurrentState = NormalizeState(string(c.CurrentState))
	if !IsValidPhase(c.DialogPhase) {
		c.CurrentState = StateInit
		c.DialogPhase = PhaseInit
	}
	if c.DetectedIntent != "" {
		c.DetectedIntent = NormalizeIntent(string(c.DetectedIntent))
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
}

// GuardCounters decodes the loop-guard counters nested in the metadata map.
// A missing or corrupt entry yields zeroed counters.
func (c *ConversationState) GuardCounters() GuardCounters {
	var gc GuardCounters
	raw, ok := c.Metadata[MetadataKeyLoopGuard]
	if !ok || raw == "" {
		return gc
	}
	if err := json.Unmarshal([]byte(raw), &gc); err != nil {
		return GuardCounters{}
	}
	return gc
}

// SetGuardCounters encodes the loop-guard counters back into metadata.
func (c *ConversationState) SetGuardCounters(gc GuardCounters) {
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	raw, err := json.Marshal(gc)
	if err != nil {
		return
	}
	c.Metadata[MetadataKeyLoopGuard] = string(raw)
}

// AppendMessage appends a message to the history with the current timestamp.
func (c *ConversationState) AppendMessage(role, content string, attachments ...Attachment) {
	c.Messages = append(c.Messages, Message{
		Role:        role,
		Content:     content,
		Attachments: attachments,
		Timestamp:   time.Now().UTC(),
	})
}

// LastUserMessage returns the most recent user message content, or "".
func (c *ConversationState) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// HasInboundImage reports whether the most recent user message carries an
// image attachment.
func (c *ConversationState) HasInboundImage() bool {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != RoleUser {
			continue
		}
		for _, a := range c.Messages[i].Attachments {
			if a.Kind == "image" {
				return true
			}
		}
		return false
	}
	return false
}

// Clone returns a deep copy of the document. The guard pass mutates a clone
// so an abandoned turn leaves the loaded document untouched.
func (c *ConversationState) Clone() *ConversationState {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	cp.SelectedProducts = append([]ProductRef(nil), c.SelectedProducts...)
	cp.OfferedProducts = append([]ProductRef(nil), c.OfferedProducts...)
	return &cp
}
