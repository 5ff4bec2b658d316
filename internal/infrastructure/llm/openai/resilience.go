package openai

import (
	"context"
	"errors"
	"net"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, resilience.ErrAttemptTimeout) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	if status, ok := httpStatus(err); ok {
		if isRetryableHTTPStatus(status) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func httpStatus(err error) (int, bool) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrProviderUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
