package flow

import (
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/BTreeMap/SalesPipe/internal/metrics"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// StateSizeGovernor bounds the persisted checkpoint: it caps the message
// history, compacts individual messages, and warns when the serialized
// document still exceeds the soft byte limit.
type StateSizeGovernor struct {
	cfg Config
}

// NewStateSizeGovernor creates a governor from the guard configuration.
func NewStateSizeGovernor(cfg Config) *StateSizeGovernor {
	return &StateSizeGovernor{cfg: cfg}
}

// Apply runs the full pre-persistence pass: trim, compact, then the size
// check. The document is always left persistable; the size limit is a soft
// guard that only logs and counts.
func (g *StateSizeGovernor) Apply(st *models.ConversationState) {
	g.TrimHistory(st)
	g.Compact(st)
	g.CheckSize(st)
}

// TrimHistory caps the message history to the configured last-N entries.
// A limit of 0 disables trimming.
func (g *StateSizeGovernor) TrimHistory(st *models.ConversationState) {
	limit := g.cfg.HistoryLimit
	if limit <= 0 || len(st.Messages) <= limit {
		return
	}
	trimmed := len(st.Messages) - limit
	st.Messages = append([]models.Message(nil), st.Messages[trimmed:]...)
	metrics.TrimmedMessages.Add(float64(trimmed))
	slog.Info("StateSizeGovernor.TrimHistory: trimmed message history",
		"sessionID", st.SessionID, "trimmed", trimmed, "kept", len(st.Messages))
}

// Compact reduces per-message payload: inline attachment data is dropped
// (URLs survive) and content is cut to the configured character cap.
func (g *StateSizeGovernor) Compact(st *models.ConversationState) {
	for i := range st.Messages {
		m := &st.Messages[i]
		if g.cfg.MaxMessageChars > 0 && len(m.Content) > g.cfg.MaxMessageChars {
			m.Content = truncateUTF8(m.Content, g.cfg.MaxMessageChars)
		}
		for j := range m.Attachments {
			m.Attachments[j].Data = ""
		}
	}
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CheckSize serializes the document and warns when it exceeds the soft byte
// limit. The document is persisted regardless of the outcome.
func (g *StateSizeGovernor) CheckSize(st *models.ConversationState) {
	if g.cfg.CheckpointSoftLimitBytes <= 0 {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		slog.Error("StateSizeGovernor.CheckSize: failed to serialize state", "sessionID", st.SessionID, "error", err)
		return
	}
	if len(raw) > g.cfg.CheckpointSoftLimitBytes {
		metrics.OversizeCheckpoints.Inc()
		slog.Warn("StateSizeGovernor.CheckSize: checkpoint exceeds soft size limit",
			"sessionID", st.SessionID, "bytes", len(raw), "limit", g.cfg.CheckpointSoftLimitBytes)
	}
}
