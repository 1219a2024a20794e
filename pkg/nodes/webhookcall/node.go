// Package webhookcall provides the call_webhook action handler, an outbound
// HTTP request with templated URL, headers and body.
package webhookcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidecrm/tide/pkg/models"
	"github.com/tidecrm/tide/pkg/protocol"
	"github.com/tidecrm/tide/pkg/template"
)

const maxResponseBytes = 64 * 1024

type Node struct {
	config models.CallWebhookConfig
	client *http.Client
	logger *slog.Logger
}

func NewNode(config models.CallWebhookConfig, client *http.Client, logger *slog.Logger) (*Node, error) {
	if config.URL == "" {
		return nil, errors.New("call_webhook requires a url")
	}

	if config.Method == "" {
		config.Method = http.MethodPost
	}

	config.Method = strings.ToUpper(config.Method)

	switch config.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("call_webhook does not support method %q", config.Method)
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Node{config: config, client: client, logger: logger}, nil
}

func (n *Node) Type() string {
	return models.NodeTypeCallWebhook
}

// Execute sends the request. Non-2xx responses fail the node; the response
// body is exposed to downstream nodes as webhook.response.
func (n *Node) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.NodeOutcome, error) {
	data := executionCtx.TemplateData()
	url := template.Resolve(n.config.URL, data)

	var reqBody io.Reader

	renderedBody := ""
	if n.config.Body != "" && n.config.Method != http.MethodGet {
		renderedBody = template.Resolve(n.config.Body, data)
		reqBody = strings.NewReader(renderedBody)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	if renderedBody != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range n.config.Headers {
		req.Header.Set(key, template.Resolve(value, data))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to close webhook response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	response := map[string]any{"status": resp.StatusCode}

	var parsed map[string]any
	if json.Unmarshal(respBody, &parsed) == nil {
		response["body"] = parsed
	} else {
		response["body"] = string(respBody)
	}

	if executionCtx.Extra == nil {
		executionCtx.Extra = make(map[string]any)
	}

	executionCtx.Extra["webhook"] = map[string]any{"response": response}

	return &models.NodeOutcome{Data: response}, nil
}

// Factory builds call_webhook handlers.
type Factory struct{}

func (f *Factory) ID() string {
	return models.NodeTypeCallWebhook
}

func (f *Factory) Create(config map[string]any, deps protocol.Dependencies) (protocol.NodeHandler, error) {
	var cfg models.CallWebhookConfig

	err := models.NodeData{Type: models.NodeTypeCallWebhook, Config: config}.DecodeConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return NewNode(cfg, deps.HTTPClient, deps.Logger)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "minLength": 1},
			"method":  map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{"type": "string"},
		},
	}
}
