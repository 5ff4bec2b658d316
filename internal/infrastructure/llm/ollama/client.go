package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/llm/queryprompt"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *Client) { c.temperature = temperature }
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		temperature: 0.2,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, embedPath, request, &response)
	}, classifyOllamaError)
	if err != nil {
		return nil, providerError("ollama embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "ollama embed", errors.New("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

// QueryParser asks the generation model for a JSON filter.
type QueryParser struct {
	client *Client
}

func NewQueryParser(client *Client) *QueryParser {
	return &QueryParser{client: client}
}

func (p *QueryParser) Parse(ctx context.Context, query string, now time.Time) (domain.ParsedFilter, error) {
	raw, err := p.client.generateJSON(ctx, queryprompt.SystemPrompt, queryprompt.Build(query, now))
	if err != nil {
		return domain.ParsedFilter{}, err
	}
	return queryprompt.Decode(raw)
}

func (c *Client) generateJSON(ctx context.Context, system, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"system": system,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return c.postJSON(callCtx, generatePath, reqBody, &response)
	}, classifyOllamaError)
	if err != nil {
		return "", providerError("ollama generate", err)
	}
	out := strings.TrimSpace(response.Response)
	if out == "" {
		return "", domain.WrapError(domain.ErrQueryParse, "ollama generate", errors.New("empty response"))
	}
	return out, nil
}
