package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tabiq-dev/tabiq/internal/logging"
)

// Client implements CompletionService against one provider
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New validates the options and builds a client. Providers that need an
// API key fail here, not on first use.
func New(opts Options) (*Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider needs an API key")
		}

		if opts.Endpoint == "" {
			opts.Endpoint = anthropicBaseURL
		}

		if opts.Model == "" {
			opts.Model = anthropicDefaultModel
		}
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai provider needs an API key")
		}

		if opts.Endpoint == "" {
			opts.Endpoint = openAIBaseURL
		}

		if opts.Model == "" {
			opts.Model = openAIDefaultModel
		}
	case ProviderOllama:
		if opts.Endpoint == "" {
			opts.Endpoint = ollamaBaseURL
		}

		if opts.Model == "" {
			opts.Model = ollamaDefaultModel
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMinute)/60, 1)
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}, nil
}

// Provider reports which backend the client talks to
func (c *Client) Provider() string {
	return c.opts.Provider
}

// Allow reports whether the rate governor would admit a request right
// now, without consuming capacity. Background work checks this and
// reschedules instead of parking a worker on Wait.
func (c *Client) Allow() bool {
	if c.limiter == nil {
		return true
	}

	r := c.limiter.Reserve()
	if !r.OK() {
		return false
	}

	ok := r.Delay() == 0
	r.Cancel()

	return ok
}

// Complete sends one completion request, waiting on the rate governor
// and retrying transient failures with a fixed delay.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.opts.MaxTokens
	}

	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			logging.Debugf("retrying %s completion, attempt %d: %v",
				c.opts.Provider, attempt+1, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RetryDelay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		text, err := c.complete(ctx, req)
		if err == nil {
			return &Response{Text: text, Provider: c.opts.Provider, Model: c.opts.Model}, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			break
		}
	}

	return nil, fmt.Errorf("%s completion failed: %w", c.opts.Provider, lastErr)
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	switch c.opts.Provider {
	case ProviderAnthropic:
		return c.completeAnthropic(ctx, req)
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, req)
	default:
		return c.completeOllama(ctx, req)
	}
}

// transientError marks failures worth retrying: transport errors, rate
// limiting, server-side faults.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Anthropic messages API

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *apiError          `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) completeAnthropic(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:       c.opts.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: c.opts.Temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}

	respBody, err := c.post(ctx, c.opts.Endpoint+"/messages", body, func(r *http.Request) {
		r.Header.Set("x-api-key", c.opts.APIKey)
		r.Header.Set("anthropic-version", anthropicVersion)
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", response.Error.Message)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty anthropic response")
	}

	return response.Content[0].Text, nil
}

// OpenAI chat completions API

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

func (c *Client) completeOpenAI(ctx context.Context, req Request) (string, error) {
	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}

	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body := openAIRequest{
		Model:          c.opts.Model,
		Messages:       messages,
		Temperature:    c.opts.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	respBody, err := c.post(ctx, c.opts.Endpoint+"/chat/completions", body, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("openai error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("empty openai response")
	}

	return response.Choices[0].Message.Content, nil
}

// Ollama generate API

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) completeOllama(ctx context.Context, req Request) (string, error) {
	body := ollamaRequest{
		Model:  c.opts.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": c.opts.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	respBody, err := c.post(ctx, c.opts.Endpoint+"/api/generate", body, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}

	if response.Error != "" {
		return "", fmt.Errorf("ollama error: %s", response.Error)
	}

	return response.Response, nil
}

// post sends a JSON body and returns the response bytes. Non-2xx turns
// into an error carrying the status and body; 429 and 5xx are transient.
func (c *Client) post(ctx context.Context, url string, reqBody any, decorate func(*http.Request)) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transientError{err: statusErr}
		}

		return nil, statusErr
	}

	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
