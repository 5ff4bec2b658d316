// Package openai adapts OpenAI-compatible APIs to the embedding and query
// parsing ports.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/llm/queryprompt"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Dimensions  int
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	api      *goopenai.Client
	cfg      Config
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.Timeout > 0 {
		if httpClient, ok := clientCfg.HTTPClient.(*http.Client); ok {
			httpClient.Timeout = cfg.Timeout
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	return &Client{
		api:      goopenai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		executor: executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(e.client.cfg.EmbedModel),
		Dimensions: e.client.cfg.Dimensions,
	}
	resp, err := resilience.Do(ctx, e.client.executor, "openai.embed", func(callCtx context.Context) (goopenai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(callCtx, req)
	}, classifyOpenAIError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("openai embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "openai embed", errors.New("empty embedding result"))
	}
	return resp.Data[0].Embedding, nil
}

// QueryParser turns a search query into a filter with a JSON-mode chat call.
type QueryParser struct {
	client *Client
}

func NewQueryParser(client *Client) *QueryParser {
	return &QueryParser{client: client}
}

func (p *QueryParser) Parse(ctx context.Context, query string, now time.Time) (domain.ParsedFilter, error) {
	req := goopenai.ChatCompletionRequest{
		Model: p.client.cfg.ChatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: queryprompt.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: queryprompt.Build(query, now)},
		},
		Temperature: p.client.cfg.Temperature,
		MaxTokens:   p.client.cfg.MaxTokens,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	resp, err := resilience.Do(ctx, p.client.executor, "openai.parse_query", func(callCtx context.Context) (goopenai.ChatCompletionResponse, error) {
		return p.client.api.CreateChatCompletion(callCtx, req)
	}, classifyOpenAIError)
	if err != nil {
		return domain.ParsedFilter{}, wrapTemporaryIfNeeded("openai parse query", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ParsedFilter{}, domain.WrapError(domain.ErrQueryParse, "openai parse query", errors.New("no choices in response"))
	}
	return queryprompt.Decode(resp.Choices[0].Message.Content)
}
