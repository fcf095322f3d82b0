package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/messaging"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// MessageRequest is the body for POST /messages.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	HasImage  bool   `json:"has_image,omitempty"`
}

// MessageResponse is the result payload for POST /messages.
type MessageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	State     string `json:"state"`
	Phase     string `json:"phase"`
	Escalated bool   `json:"escalated"`
}

// messagesHandler handles POST /messages: one customer turn in, one reply out.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("messagesHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("messagesHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
		slog.Debug("messagesHandler generated session id", "sessionID", req.SessionID)
	}

	reply, err := s.engine.ProcessTurn(r.Context(), req.SessionID, flow.TurnInput{
		UserText: req.Text,
		HasImage: req.HasImage,
	})
	if err != nil {
		slog.Error("messagesHandler turn failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	st, err := s.engine.Load(req.SessionID)
	if err != nil || st == nil {
		slog.Error("messagesHandler reload failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(MessageResponse{
		SessionID: req.SessionID,
		Reply:     reply,
		State:     string(st.CurrentState),
		Phase:     string(st.DialogPhase),
		Escalated: st.ShouldEscalate,
	}))
}

// twilioWebhookHandler handles POST /webhook/twilio: form-encoded inbound
// WhatsApp messages. The sender's phone number is the session id. The message
// is queued on the messaging service's inbound channel; the server's consumer
// runs the turn and sends the reply, so the webhook acks immediately.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("twilioWebhookHandler invoked", "method", r.Method)

	if err := r.ParseForm(); err != nil {
		slog.Warn("twilioWebhookHandler form parse failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	hasImage := r.FormValue("NumMedia") != "" && r.FormValue("NumMedia") != "0"
	if from == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("From is required"))
		return
	}

	sessionID, err := s.msgService.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("twilioWebhookHandler invalid sender", "error", err, "from", from)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid sender: "+err.Error()))
		return
	}

	s.msgService.Deliver(messaging.InboundMessage{
		From:     sessionID,
		Body:     body,
		HasImage: hasImage,
		Time:     time.Now(),
	})
	w.WriteHeader(http.StatusOK)
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	st, err := s.engine.Load(sessionID)
	if err != nil {
		slog.Error("getSessionHandler load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if st == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(st))
}

// resetSessionHandler handles POST /sessions/{id}/reset.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.engine.Reset(sessionID); err != nil {
		slog.Error("resetSessionHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"session_id": sessionID, "status": "reset"}))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
