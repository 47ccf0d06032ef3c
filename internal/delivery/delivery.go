package delivery

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/errors"
)

// Message is a rendered transcript ready to be delivered to the owner.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`

	SessionID      string `json:"sessionId"`
	ContactEmail   string `json:"userEmail,omitempty"`
	MessageCount   int    `json:"messageCount"`
	SessionStarted string `json:"sessionStarted"`
	SessionEnded   string `json:"sessionEnded"`
}

// Provider delivers a transcript message through one concrete channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Service tries each configured provider in order until one succeeds.
type Service struct {
	providers []Provider
}

func NewService(providers ...Provider) *Service {
	return &Service{providers: providers}
}

func (s *Service) Configured() bool {
	return len(s.providers) > 0
}

// Send attempts delivery through the provider chain. Permanent failures
// (bad recipient) abort the chain; transient ones fall through to the
// next provider. Returns DeliveryExhausted when every provider fails.
func (s *Service) Send(ctx context.Context, msg *Message) error {
	if len(s.providers) == 0 {
		return errors.New(errors.ErrCodeDeliveryExhausted, "no delivery providers configured")
	}

	var attempted []string
	var lastErr error

	for _, p := range s.providers {
		attempted = append(attempted, p.Name())

		err := p.Send(ctx, msg)
		if err == nil {
			log.Info().
				Str("provider", p.Name()).
				Str("session_id", msg.SessionID).
				Int("message_count", msg.MessageCount).
				Msg("transcript delivered")
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("provider", p.Name()).
			Str("session_id", msg.SessionID).
			Msg("delivery provider failed")

		if errors.GetCode(err) == errors.ErrCodeInvalidRecipient {
			return err
		}
	}

	return errors.DeliveryExhausted(attempted, lastErr)
}
