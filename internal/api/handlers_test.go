package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/messaging"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

type cannedExecutor struct {
	result flow.StepResult
}

func (e *cannedExecutor) Execute(ctx context.Context, st *models.ConversationState, in flow.TurnInput) (*flow.StepResult, error) {
	r := e.result
	return &r, nil
}

func newTestServer(t *testing.T) (*Server, *messaging.MockService) {
	t.Helper()
	for _, step := range models.AllSteps() {
		var res flow.StepResult
		if step == models.StepIntentClassification {
			res = flow.StepResult{DetectedIntent: models.IntentGreeting}
		} else {
			res = flow.StepResult{Reply: "canned reply"}
		}
		flow.Register(step, &cannedExecutor{result: res})
	}

	eng, err := flow.NewEngine(store.NewInMemoryStore(), flow.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	msg := messaging.NewMockService()
	return NewServer(eng, msg), msg
}

func TestMessagesHandler(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(MessageRequest{SessionID: "s1", Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != models.StatusOK {
		t.Errorf("expected ok status, got %s (%s)", resp.Status, resp.Message)
	}
}

func TestMessagesHandlerGeneratesSessionID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string          `json:"status"`
		Result MessageResponse `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Result.SessionID == "" {
		t.Error("expected a generated session id in the response")
	}
}

func TestMessagesHandlerRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTwilioWebhookHandler(t *testing.T) {
	s, msg := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.consumeInbound(ctx)

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234567")
	form.Set("Body", "hello")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The consumer runs the turn asynchronously; wait for the reply.
	deadline := time.After(2 * time.Second)
	for {
		sent := msg.SentMessages()
		if len(sent) == 1 {
			if sent[0].To != "+15551234567" {
				t.Errorf("reply should target the canonical sender, got %s", sent[0].To)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for outbound reply, got %d sends", len(sent))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConsumerStopsWhenChannelCloses(t *testing.T) {
	s, msg := newTestServer(t)

	done := make(chan struct{})
	go func() {
		s.consumeInbound(context.Background())
		close(done)
	}()

	msg.Deliver(messaging.InboundMessage{From: "+15551234567", Body: "hello", Time: time.Now()})
	if err := msg.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer should exit when the inbound channel closes")
	}
}

func TestSessionLifecycleHandlers(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s9", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing session should 404, got %d", w.Code)
	}

	body, _ := json.Marshal(MessageRequest{SessionID: "s9", Text: "hello"})
	req = httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	s.httpServer.Handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/sessions/s9", nil)
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after a turn, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/s9/reset", nil)
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("reset should succeed, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/s9", nil)
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("reset session should 404, got %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
