// Package llm provides a provider-agnostic LLM client used by the router
// for intent disambiguation and prompt embedding. Errors are classified
// transient, rate-limit or fatal; transient failures retry on a fixed
// backoff ladder and fatal (auth) failures never retry.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// EndpointConfig identifies one LLM endpoint.
type EndpointConfig struct {
	// Provider is the registered provider name ("openai", "anthropic").
	Provider string

	// URL is the endpoint base URL. Empty uses the provider default.
	URL string

	// Model is the chat model identifier.
	Model string

	// EmbeddingModel is the embeddings model identifier, for providers
	// that serve one.
	EmbeddingModel string

	// APIKey authenticates requests. Empty sends no credentials.
	APIKey string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default,
	// 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// TokensUsed is the total tokens consumed (if available).
	TokensUsed int

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Client is a provider-agnostic LLM client bound to one endpoint.
type Client struct {
	endpoint   EndpointConfig
	httpClient *http.Client
	schedule   RetrySchedule
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetrySchedule sets the retry schedule.
func WithRetrySchedule(s RetrySchedule) ClientOption {
	return func(client *Client) {
		client.schedule = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates an LLM client for the given endpoint.
func NewClient(endpoint EndpointConfig, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		schedule: DefaultRetrySchedule(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request, retrying transient failures on the
// schedule. The caller bounds total wall time through ctx.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	provider := GetProvider(c.endpoint.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", c.endpoint.Provider))
	}

	requestID := uuid.New().String()

	var lastErr error
	for retry := 0; ; retry++ {
		resp, err := c.doRequest(ctx, provider, req)
		if err == nil {
			resp.RequestID = requestID
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			return nil, err
		}

		backoff, ok := c.schedule.backoffFor(retry, IsRateLimit(err))
		if !ok {
			break
		}

		c.logger.Debug("LLM request failed, retrying",
			"retry", retry+1,
			"backoff", backoff,
			"rate_limit", IsRateLimit(err),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("llm request failed after retries: %w", lastErr)
}

// Embed returns one vector per input text using the endpoint's embedding
// model. The provider must implement EmbeddingProvider.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	provider := GetProvider(c.endpoint.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", c.endpoint.Provider))
	}
	embedder, ok := provider.(EmbeddingProvider)
	if !ok {
		return nil, NewFatalError(fmt.Errorf("provider %s has no embeddings endpoint", c.endpoint.Provider))
	}

	body, err := embedder.BuildEmbeddingRequestBody(c.endpoint.EmbeddingModel, inputs)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build embedding request: %w", err))
	}

	respBody, err := c.post(ctx, provider, embedder.BuildEmbeddingURL(c.endpoint.URL), body)
	if err != nil {
		return nil, err
	}

	vectors, err := embedder.ParseEmbeddingResponse(respBody)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("parse embedding response: %w", err))
	}
	if len(vectors) != len(inputs) {
		return nil, NewFatalError(fmt.Errorf("embedding count mismatch: %d inputs, %d vectors", len(inputs), len(vectors)))
	}
	return vectors, nil
}

// doRequest executes a single chat-completion request.
func (c *Client) doRequest(ctx context.Context, provider Provider, req Request) (*Response, error) {
	body, err := provider.BuildRequestBody(c.endpoint.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	respBody, err := c.post(ctx, provider, provider.BuildURL(c.endpoint.URL), body)
	if err != nil {
		return nil, err
	}

	return provider.ParseResponse(respBody, c.endpoint.Model)
}

// post executes one HTTP POST against the endpoint with classification of
// the result.
func (c *Client) post(ctx context.Context, provider Provider, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, c.endpoint.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient.
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// classifyHTTPError determines how an HTTP error should be retried.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(err)
	case statusCode >= 500:
		// Server errors are transient.
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal.
		return NewFatalError(err)
	default:
		// Remaining 4xx are bad requests; fatal.
		return NewFatalError(err)
	}
}
