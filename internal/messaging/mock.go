package messaging

import (
	"context"
	"sync"
)

// MockService is an in-memory Service for tests and local development.
type MockService struct {
	mu        sync.Mutex
	stopped   bool
	sent      []SentMessage
	responses chan InboundMessage
}

// SentMessage records one outbound send.
type SentMessage struct {
	To   string
	Body string
}

// NewMockService creates a MockService.
func NewMockService() *MockService {
	return &MockService{responses: make(chan InboundMessage, DefaultChannelBufferSize)}
}

func (s *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (s *MockService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	return nil
}

// SentMessages returns a copy of the recorded outbound sends.
func (s *MockService) SentMessages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

func (s *MockService) Start(ctx context.Context) error { return nil }

func (s *MockService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.responses)
	}
	return nil
}

func (s *MockService) Responses() <-chan InboundMessage {
	return s.responses
}

// Deliver pushes an inbound message for tests.
func (s *MockService) Deliver(msg InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.responses <- msg
	}
}
