package httpadapter

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrMessageNotFound), domain.IsKind(err, domain.ErrBucketNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrQueryParse):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is what the caller sees. Details of upstream and internal
// failures stay in the log.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return err.Error()
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadGateway:
		return "could not understand the search query"
	case http.StatusServiceUnavailable:
		return "search provider is temporarily unavailable"
	default:
		return "internal error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("request_id", requestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("http_request_failed")

	writeJSON(w, status, map[string]string{"error": publicMessage(status, err)})
}
