package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
	"github.com/kirillkom/inbox-triage/internal/observability/metrics"
)

const maxRequestBodyBytes = 4 << 20

type Router struct {
	cfg      config.Config
	service  string
	metrics  *metrics.HTTPServerMetrics
	search   ports.EmailSearcher
	backfill ports.EmbeddingBackfiller
	buckets  ports.BucketManager
	messages ports.MessageManager
	insights ports.InsightsProvider

	auth      *authenticator
	validator *requestValidator
}

func NewRouter(
	cfg config.Config,
	httpMetrics *metrics.HTTPServerMetrics,
	search ports.EmailSearcher,
	backfill ports.EmbeddingBackfiller,
	buckets ports.BucketManager,
	messages ports.MessageManager,
	insights ports.InsightsProvider,
) (*Router, error) {
	auth, err := newAuthenticator(cfg.AuthMode, cfg.JWTSecret, cfg.JWTIssuer, cfg.UserIDHeader)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	rt := &Router{
		cfg:      cfg,
		service:  "triage-api",
		metrics:  httpMetrics,
		search:   search,
		backfill: backfill,
		buckets:  buckets,
		messages: messages,
		insights: insights,
		auth:     auth,
	}
	if cfg.OpenAPIStrict {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/search", rt.smartSearch)
	api.HandleFunc("GET /v1/search/keyword", rt.keywordSearch)
	api.HandleFunc("POST /v1/search/embeddings", rt.generateEmbeddings)
	api.HandleFunc("GET /v1/buckets", rt.listBuckets)
	api.HandleFunc("POST /v1/buckets", rt.createBucket)
	api.HandleFunc("PATCH /v1/buckets/{bucketId}", rt.updateBucket)
	api.HandleFunc("DELETE /v1/buckets/{bucketId}", rt.deleteBucket)
	api.HandleFunc("GET /v1/emails", rt.listEmails)
	api.HandleFunc("POST /v1/emails", rt.importEmails)
	api.HandleFunc("GET /v1/emails/{emailId}", rt.getEmail)
	api.HandleFunc("PATCH /v1/emails/{emailId}/bucket", rt.assignBucket)
	api.HandleFunc("POST /v1/emails/{emailId}/embedding", rt.embedEmail)
	api.HandleFunc("DELETE /v1/emails/{emailId}/embedding", rt.resetEmbedding)
	api.HandleFunc("GET /v1/analytics/insights", rt.getInsights)

	var v1 http.Handler = api
	if rt.validator != nil {
		v1 = rt.validator.middleware(v1)
	}
	v1 = rt.auth.middleware(v1)
	v1 = backpressureMiddleware(v1, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	v1 = rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", v1)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) smartSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := rt.search.SmartSearch(r.Context(), userIDFromContext(r.Context()), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSearch("smart", result, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) keywordSearch(w http.ResponseWriter, r *http.Request) {
	var keyword string
	if err := runtime.BindQueryParameter("form", true, true, "q", r.URL.Query(), &keyword); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind q", err))
		return
	}

	start := time.Now()
	result, err := rt.search.KeywordSearch(r.Context(), userIDFromContext(r.Context()), keyword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSearch("keyword", result, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) generateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var batchSize *int
	if err := runtime.BindQueryParameter("form", true, false, "batch_size", r.URL.Query(), &batchSize); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind batch_size", err))
		return
	}
	size := 0
	if batchSize != nil {
		size = *batchSize
	}

	report, err := rt.backfill.GenerateMissing(r.Context(), userIDFromContext(r.Context()), size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordBackfill(rt.service, report.Processed, report.Failed)
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) listBuckets(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if err := rt.buckets.EnsureDefaults(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	buckets, err := rt.buckets.ListBuckets(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (rt *Router) createBucket(w http.ResponseWriter, r *http.Request) {
	var req domain.BucketPatch
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bucket, err := rt.buckets.CreateBucket(r.Context(), userIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bucket)
}

func (rt *Router) updateBucket(w http.ResponseWriter, r *http.Request) {
	bucketID, err := pathParam(r, "bucketId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req domain.BucketPatch
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bucket, err := rt.buckets.UpdateBucket(r.Context(), userIDFromContext(r.Context()), bucketID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bucket)
}

func (rt *Router) deleteBucket(w http.ResponseWriter, r *http.Request) {
	bucketID, err := pathParam(r, "bucketId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	deletion, err := rt.buckets.DeleteBucket(r.Context(), userIDFromContext(r.Context()), bucketID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletion)
}

func (rt *Router) listEmails(w http.ResponseWriter, r *http.Request) {
	var (
		bucketID      string
		limit, offset int
	)
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "bucket_id", query, &bucketID); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind bucket_id", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind limit", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind offset", err))
		return
	}

	page, err := rt.messages.List(r.Context(), userIDFromContext(r.Context()), bucketID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getEmail(w http.ResponseWriter, r *http.Request) {
	emailID, err := pathParam(r, "emailId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := rt.messages.Get(r.Context(), userIDFromContext(r.Context()), emailID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (rt *Router) importEmails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []domain.MessageImport `json:"messages"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := rt.messages.Import(r.Context(), userIDFromContext(r.Context()), req.Messages)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) assignBucket(w http.ResponseWriter, r *http.Request) {
	emailID, err := pathParam(r, "emailId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		BucketID *string `json:"bucket_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := rt.messages.AssignBucket(r.Context(), userIDFromContext(r.Context()), emailID, req.BucketID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (rt *Router) embedEmail(w http.ResponseWriter, r *http.Request) {
	emailID, err := pathParam(r, "emailId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.backfill.EmbedMessage(r.Context(), userIDFromContext(r.Context()), emailID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) resetEmbedding(w http.ResponseWriter, r *http.Request) {
	emailID, err := pathParam(r, "emailId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.backfill.ResetEmbedding(r.Context(), userIDFromContext(r.Context()), emailID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := rt.insights.Insights(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (rt *Router) recordSearch(endpoint string, result *domain.SearchResult, elapsed time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	rt.metrics.RecordSearch(rt.service, endpoint, string(result.Strategy), result.TotalCount, elapsed)
}

func pathParam(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind "+name, err)
	}
	return value, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode body", errors.New("request body is required"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode body", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
