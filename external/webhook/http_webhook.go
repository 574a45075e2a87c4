package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
	"github.com/foxseedlab/multilingo/internal/webhook"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "multilingo-webhook/1"
	// Only the head of a rejected response is kept for the error.
	maxErrorBody = 512
)

// StatusError reports a receiver that answered outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook receiver answered %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook receiver answered %d: %s", e.StatusCode, e.Body)
}

type Option func(*HTTPSender)

// WithHTTPClient replaces the default client, which times out after 15s.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSender) { s.client = c }
}

// HTTPSender posts session transcripts as JSON. With no URL configured it
// accepts every payload and sends nothing.
type HTTPSender struct {
	url    string
	client *http.Client
}

func NewHTTPSender(url string, opts ...Option) *HTTPSender {
	s := &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSender) SendTranscript(ctx context.Context, payload webhook.SessionTranscriptPayload) error {
	if s.url == "" {
		return nil
	}

	req, err := s.newRequest(ctx, payload)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transcript for room %s: %w", payload.RoomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	// Drained so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Debug("transcript webhook delivered", logging.Room(domain.RoomID(payload.RoomID)), "status", resp.StatusCode, "bytes", req.ContentLength)
	return nil
}

func (s *HTTPSender) newRequest(ctx context.Context, payload webhook.SessionTranscriptPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode transcript payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}
