// Package messaging provides the outbound channel abstraction for SalesPipe.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Default channel configuration.
const (
	// DefaultChannelBufferSize is the buffer size for the inbound response channel.
	DefaultChannelBufferSize = 64
	// DefaultSendTimeout bounds one outbound send.
	DefaultSendTimeout = 30 * time.Second
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex validates E.164-ish phone numbers.
var phoneNumberRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// InboundMessage is one customer message delivered by a channel adapter.
type InboundMessage struct {
	From     string
	Body     string
	HasImage bool
	Time     time.Time
}

// Service defines a pluggable message delivery abstraction. Each channel
// implements its own recipient validation rules.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming customer messages.
	Responses() <-chan InboundMessage

	// Deliver hands one inbound message to the service for queuing on the
	// Responses channel. Channel adapters call this from their webhook or
	// receive path.
	Deliver(msg InboundMessage)
}

// CanonicalizePhone strips formatting and validates a phone number,
// returning it in +<digits> form.
func CanonicalizePhone(raw string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	bare := strings.TrimPrefix(cleaned, "+")
	if !phoneNumberRegex.MatchString(bare) {
		return "", errors.New("invalid phone number: " + raw)
	}
	return "+" + bare, nil
}
