package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPSender posts outbound messages to a gateway endpoint. The gateway owns
// the provider-specific delivery details.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPSender(baseURL, apiKey string, logger *slog.Logger) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (s *HTTPSender) SendText(ctx context.Context, teamID, contactPhone, body string) error {
	return s.post(ctx, "/v1/messages", map[string]any{
		"team_id": teamID,
		"to":      contactPhone,
		"type":    "text",
		"body":    body,
	})
}

func (s *HTTPSender) SendInteractive(ctx context.Context, teamID, contactPhone, body string, buttons []Button) error {
	return s.post(ctx, "/v1/messages", map[string]any{
		"team_id": teamID,
		"to":      contactPhone,
		"type":    "interactive",
		"body":    body,
		"buttons": buttons,
	})
}

func (s *HTTPSender) post(ctx context.Context, path string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach message gateway: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close gateway response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("message gateway returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

var _ Sender = (*HTTPSender)(nil)
