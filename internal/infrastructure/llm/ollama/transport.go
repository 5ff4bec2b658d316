package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

const (
	generatePath = "/api/generate"
	embedPath    = "/api/embed"
)

// HTTPStatusError is a non-2xx answer from the Ollama API.
type HTTPStatusError struct {
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s: %s", e.Path, e.Status)
	}
	return fmt.Sprintf("ollama %s: %s: %s", e.Path, e.Status, body)
}

// rejected reports whether the model refused the request itself, as opposed
// to being missing, overloaded or down.
func (e *HTTPStatusError) rejected() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, resilience.ErrAttemptTimeout), resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		// a refused prompt or text says nothing about the server's health
		return resilience.ErrorClassification{RecordFailure: !statusErr.rejected()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// providerError maps a failed call onto a domain kind. The generation model
// refusing a prompt is a query parse failure; the embedding model refusing a
// text is invalid input for that message. Everything else leaves the
// provider unavailable. Caller cancellation passes through untouched.
func providerError(operation string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if domain.IsKind(err, domain.ErrProviderUnavailable) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.rejected() {
		switch statusErr.Path {
		case generatePath:
			return domain.WrapError(domain.ErrQueryParse, operation, err)
		case embedPath:
			return domain.WrapError(domain.ErrInvalidInput, operation, err)
		}
	}
	return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
}
