package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	apperrors "github.com/greeterhq/chat-server-go/internal/errors"
)

// Bridge is the narrow interface the chat flow needs from the upstream
// assistant: open a conversation thread, then exchange one turn at a time.
// Retry and run-polling logic stays behind this interface.
type Bridge interface {
	CreateThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID string, content string) (string, error)
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	assistantID string

	pollFastDelay time.Duration
	pollSlowDelay time.Duration
}

type Option func(*Client)

// WithPollDelays overrides run-poll delays, used by tests.
func WithPollDelays(fast, slow time.Duration) Option {
	return func(c *Client) {
		c.pollFastDelay = fast
		c.pollSlowDelay = slow
	}
}

func NewClient(baseURL, apiKey, assistantID string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		assistantID:   assistantID,
		pollFastDelay: config.AssistantPollFastDelay,
		pollSlowDelay: config.AssistantPollSlowDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread threadResponse
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", err
	}
	log.Debug().Str("threadId", thread.ID).Msg("assistant thread created")
	return thread.ID, nil
}

// Ask appends the user turn to the thread, starts a run, polls it to
// completion and returns the newest assistant reply.
func (c *Client) Ask(ctx context.Context, threadID string, content string) (string, error) {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/messages", threadID), map[string]any{
		"role":    "user",
		"content": content,
	}, nil)
	if err != nil {
		return "", err
	}

	run, err := c.createRun(ctx, threadID)
	if err != nil {
		return "", err
	}

	if err := c.pollRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}

	return c.latestReply(ctx, threadID)
}

// createRun retries transient failures a bounded number of times with
// linear backoff. Auth, rate-limit and other permanent failures surface
// immediately.
func (c *Client) createRun(ctx context.Context, threadID string) (*runResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= config.AssistantMaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Str("threadId", threadID).
				Msg("retrying assistant run")
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, apperrors.UpstreamTimeout(ctx.Err())
			}
		}

		var run runResponse
		err := c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/runs", threadID), map[string]any{
			"assistant_id": c.assistantID,
		}, &run)
		if err == nil {
			return &run, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) pollRun(ctx context.Context, threadID, runID string) error {
	for poll := 1; poll <= config.AssistantMaxPolls; poll++ {
		delay := c.pollFastDelay
		if poll > config.AssistantPollFastCount {
			delay = c.pollSlowDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperrors.UpstreamTimeout(ctx.Err())
		}

		var run runResponse
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("/threads/%s/runs/%s", threadID, runID), nil, &run)
		if err != nil {
			return err
		}

		switch run.Status {
		case "completed":
			log.Debug().Int("polls", poll).Str("runId", runID).Msg("assistant run completed")
			return nil
		case "failed", "cancelled", "expired":
			return classifyRunFailure(&run)
		}
	}
	return apperrors.UpstreamTimeout(fmt.Errorf("run %s did not complete within %d polls", runID, config.AssistantMaxPolls))
}

func (c *Client) latestReply(ctx context.Context, threadID string) (string, error) {
	var list messageListResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/threads/%s/messages?limit=1&order=desc", threadID), nil, &list)
	if err != nil {
		return "", err
	}

	if len(list.Data) == 0 || list.Data[0].Role != "assistant" {
		return "", apperrors.UpstreamUnknown(errors.New("no assistant reply in thread"))
	}
	for _, part := range list.Data[0].Content {
		if part.Type == "text" && strings.TrimSpace(part.Text.Value) != "" {
			return part.Text.Value, nil
		}
	}
	return "", apperrors.UpstreamUnknown(errors.New("assistant reply had no text content"))
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return apperrors.UpstreamUnknown(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.UpstreamUnknown(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return apperrors.UpstreamTimeout(err)
		}
		return apperrors.UpstreamUnknown(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.UpstreamUnknown(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func classifyStatus(status int, body []byte) error {
	cause := fmt.Errorf("upstream status %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.UpstreamRateLimited(cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.UpstreamAuth(cause)
	case status >= 500:
		return apperrors.UpstreamServer(cause)
	default:
		return apperrors.UpstreamUnknown(cause)
	}
}

func classifyRunFailure(run *runResponse) error {
	if run.LastError == nil {
		return apperrors.UpstreamUnknown(fmt.Errorf("run ended with status %s", run.Status))
	}
	cause := fmt.Errorf("run %s: %s", run.LastError.Code, run.LastError.Message)
	switch run.LastError.Code {
	case "rate_limit_exceeded":
		return apperrors.UpstreamRateLimited(cause)
	case "server_error":
		return apperrors.UpstreamServer(cause)
	case "invalid_api_key", "permission_denied":
		return apperrors.UpstreamAuth(cause)
	default:
		return apperrors.UpstreamUnknown(cause)
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
