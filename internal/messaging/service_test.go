package messaging

import (
	"context"
	"testing"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+15551234567", "+15551234567", false},
		{"15551234567", "+15551234567", false},
		{" +1 (555) 123-4567 ", "+15551234567", false},
		{"not-a-number", "", true},
		{"+0123456", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalizePhone(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("CanonicalizePhone(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("CanonicalizePhone(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMockServiceSendAndStop(t *testing.T) {
	s := NewMockService()

	if err := s.SendMessage(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sent := s.SentMessages(); len(sent) != 1 || sent[0].Body != "hello" {
		t.Errorf("expected one recorded send, got %+v", sent)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := s.SendMessage(context.Background(), "+15551234567", "too late"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped after stop, got %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("double stop should be safe, got %v", err)
	}
}

func TestMockServiceDeliver(t *testing.T) {
	s := NewMockService()
	s.Deliver(InboundMessage{From: "+15551234567", Body: "hi"})

	select {
	case msg := <-s.Responses():
		if msg.Body != "hi" {
			t.Errorf("expected delivered body, got %q", msg.Body)
		}
	default:
		t.Fatal("expected a buffered inbound message")
	}
}
