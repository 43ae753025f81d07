package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/observability/metrics"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMax      = 5 * time.Second

	streamDataPrefix = "data: "
	streamDoneMarker = "[DONE]"
)

// OpenAI talks to an OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	metrics    *metrics.Metrics

	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	sleeper       func(time.Duration)
}

// Option customizes the client.
type Option func(*OpenAI)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *OpenAI) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides the retry attempt count and backoff delays.
func WithRetry(attempts int, base, max time.Duration) Option {
	return func(c *OpenAI) {
		c.retryAttempts = attempts
		c.retryBase = base
		c.retryMax = max
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *OpenAI) {
		c.sleeper = sleeper
	}
}

// NewOpenAI constructs a client from the provider configuration section.
func NewOpenAI(cfg config.ProviderConfig, opts ...Option) *OpenAI {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &OpenAI{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: timeout},
		metrics:       metrics.DefaultMetrics,
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
		retryMax:      defaultRetryMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Complete implements Provider with retry on transient failures.
func (c *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	content, err := c.complete(ctx, systemPrompt, userPrompt)
	c.metrics.RecordProvider("complete", err, time.Since(start).Seconds())
	return content, err
}

func (c *OpenAI) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.checkPrompts(systemPrompt, userPrompt); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts(); attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if attempt == c.attempts() || !retryable(ctx, err) {
			return "", err
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("provider complete: failed after %d attempts: %w", c.attempts(), lastErr)
}

func (c *OpenAI) sendOnce(ctx context.Context, payload chatRequest) (string, error) {
	resp, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("provider request: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider request: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("provider request: empty choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("provider request: empty content (finish_reason=%q)", parsed.Choices[0].FinishReason)
	}
	return content, nil
}

// Stream implements Provider. Tokens are forwarded as they arrive on the
// SSE body; malformed chunks are skipped rather than aborting the stream.
func (c *OpenAI) Stream(ctx context.Context, systemPrompt, userPrompt string, onToken func(string)) error {
	start := time.Now()
	err := c.stream(ctx, systemPrompt, userPrompt, onToken)
	c.metrics.RecordProvider("stream", err, time.Since(start).Seconds())
	return err
}

func (c *OpenAI) stream(ctx context.Context, systemPrompt, userPrompt string, onToken func(string)) error {
	if err := c.checkPrompts(systemPrompt, userPrompt); err != nil {
		return err
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		Stream:      true,
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, streamDataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, streamDataPrefix)
		if data == streamDoneMarker {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onToken(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("provider stream: read body: %w", err)
	}
	return nil
}

func (c *OpenAI) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("provider request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: http error: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body := make([]byte, 512)
		n, _ := resp.Body.Read(body)
		resp.Body.Close()
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body[:n])}
	}
	return resp, nil
}

func (c *OpenAI) checkPrompts(systemPrompt, userPrompt string) error {
	if strings.TrimSpace(systemPrompt) == "" {
		return errors.New("provider: system prompt required")
	}
	if strings.TrimSpace(userPrompt) == "" {
		return errors.New("provider: user prompt required")
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("provider: api key required")
	}
	return nil
}

func (c *OpenAI) attempts() int {
	if c.retryAttempts <= 0 {
		return 1
	}
	return c.retryAttempts
}

func (c *OpenAI) backoff(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		if delay > c.retryMax/2 {
			return c.retryMax
		}
		delay *= 2
	}
	if c.retryMax > 0 && delay > c.retryMax {
		return c.retryMax
	}
	return delay
}

func (c *OpenAI) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable reports whether a failed attempt is worth repeating: rate
// limits, server errors, and network timeouts. Client errors and cancelled
// contexts are final.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
