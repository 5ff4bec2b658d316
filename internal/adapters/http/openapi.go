package httpadapter

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

//go:embed openapi.yaml
var openAPIDocument []byte

type requestValidator struct {
	router routers.Router
}

func newRequestValidator() (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &requestValidator{router: router}, nil
}

// middleware rejects requests that do not match the documented contract.
// Unknown paths and methods fall through to the mux.
func (v *requestValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			var routeErr *routers.RouteError
			if errors.As(err, &routeErr) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "route request", err))
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				MultiError: false,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "validate request", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}
