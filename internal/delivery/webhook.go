package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/errors"
)

// WebhookProvider posts the transcript as JSON to an external relay
// endpoint which performs the actual email send.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhookProvider(url string) *WebhookProvider {
	return &WebhookProvider{
		url: url,
		client: &http.Client{
			Timeout: config.DeliveryWebhookTimeout,
		},
	}
}

func (p *WebhookProvider) Name() string {
	return "webhook"
}

func (p *WebhookProvider) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "marshal webhook payload", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", elapsed).
			Msg("transcript webhook error")
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("transcript webhook rejected")
		return classifyStatus(resp.StatusCode)
	}

	log.Info().
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("transcript webhook accepted")
	return nil
}

func classifyStatus(status int) error {
	err := fmt.Errorf("webhook returned status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.DeliveryAuth(err)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return errors.DeliveryRefused(err)
	case status >= 500:
		return errors.DeliveryServer(err)
	default:
		return errors.DeliveryRefused(err)
	}
}
