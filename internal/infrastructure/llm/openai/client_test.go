package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, executor *resilience.Executor) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/v1",
		ChatModel:  "gpt-4o-mini",
		EmbedModel: "text-embedding-3-small",
	}, executor)
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
}

func TestEmbedderSendsModelAndReturnsVector(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"model":"text-embedding-3-small"}`))
	}, nil)

	vector, err := NewEmbedder(client).Embed(context.Background(), "quarterly budget")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vector)
	assert.Equal(t, "text-embedding-3-small", body["model"])
	assert.Equal(t, []any{"quarterly budget"}, body["input"])
}

func TestEmbedderRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	}, fastExecutor())

	_, err := NewEmbedder(client).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestEmbedderClientErrorIsProviderUnavailableWithoutRetry(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}, fastExecutor())

	_, err := NewEmbedder(client).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrProviderUnavailable))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueryParserUsesJSONModeAndDecodes(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"topic\":\"budget\",\"sender\":\"sarah\",\"timeframe\":{\"start\":\"2026-02-03T00:00:00Z\",\"end\":\"2026-02-10T00:00:00Z\"},\"bucket\":null,\"hasAttachment\":null}"},"finish_reason":"stop"}]}`))
	}, nil)

	filter, err := NewQueryParser(client).Parse(context.Background(), "budget emails from sarah last week", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "budget", filter.Topic)
	assert.Equal(t, "sarah", filter.Sender)
	require.NotNil(t, filter.Timeframe)
	assert.Equal(t, 3, filter.Timeframe.Start.Day())

	format, _ := body["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 2)
}

func TestQueryParserNoChoicesIsParseFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}, nil)

	_, err := NewQueryParser(client).Parse(context.Background(), "x", time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrQueryParse))
}

func TestClassifierTreatsAttemptTimeoutAsRetryable(t *testing.T) {
	class := classifyOpenAIError(resilience.ErrAttemptTimeout)
	assert.True(t, class.Retryable)
	class = classifyOpenAIError(context.Canceled)
	assert.False(t, class.Retryable)
	assert.False(t, class.RecordFailure)
}
