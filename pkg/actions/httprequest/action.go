// Package httprequest provides an HTTP request action for playbook steps.
// This is the delegated external tool call for steps that notify or mutate
// remote collaborators.
package httprequest

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

	"github.com/quorumlabs/warden/pkg/models"
)

const defaultTimeoutSeconds = 30

var (
	ErrURLRequired      = errors.New("http_request action requires a 'url'")
	ErrRequestFailed    = errors.New("http request failed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Action performs an HTTP request with optional headers and body.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	client *http.Client
}

// NewAction creates an HTTP request action from step configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLRequired
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second

	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *Action) Validate() error {
	if a.URL == "" {
		return ErrURLRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, ectx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "http_request", "method", a.Method, "url", a.URL)
	logger.InfoContext(ctx, "Executing HTTP request action")

	var bodyReader io.Reader
	if a.Body != "" {
		bodyReader = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(raw),
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		result["json"] = decoded
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.StatusCode)

	return result, nil
}
