// Package openai is a minimal client for OpenAI-compatible chat completion
// endpoints (OpenRouter, vLLM, LM Studio). It supports a single-shot call
// for query rewriting and an SSE stream for answer generation.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/httpx"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/resilience"
)

const (
	streamDonePayload = "[DONE]"
	// Generous line limit: a single SSE frame can carry a long delta.
	scannerBufferSize = 1 << 20
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg Config
	// completeHTTP has a request timeout; streamHTTP must not, streams
	// outlive any sane single-request deadline.
	completeHTTP *http.Client
	streamHTTP   *http.Client
	exec         *resilience.Executor
}

func NewClient(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:          cfg,
		completeHTTP: &http.Client{Timeout: timeout},
		streamHTTP:   &http.Client{},
		exec:         exec,
	}
}

var _ ports.ChatCompleter = (*Client)(nil)

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Stream      bool                 `json:"stream"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if c.cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	return h
}

// Complete issues one non-streaming completion and returns the full text.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, opts ports.CompletionOptions) (string, error) {
	payload := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		payload.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}

	var out chatResponse
	err := c.exec.Execute(ctx, "llm:complete", func(ctx context.Context) error {
		return httpx.PostJSON(ctx, c.completeHTTP, c.endpoint(), c.headers(), payload, &out, "llm", "complete")
	}, httpx.Classify)
	if err != nil {
		return "", mapProviderError(err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm complete: response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. The breaker guards connection
// establishment only; once the stream is live, mid-stream failures surface
// as a chunk with Err set and the channel closes.
func (c *Client) Stream(ctx context.Context, messages []domain.ChatMessage) (<-chan domain.GenerationChunk, error) {
	payload := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	var resp *http.Response
	err = c.exec.Execute(ctx, "llm:stream", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create stream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		for key, value := range c.headers() {
			req.Header.Set(key, value)
		}

		r, err := c.streamHTTP.Do(req)
		if err != nil {
			return fmt.Errorf("llm stream request: %w", err)
		}
		if r.StatusCode >= 300 {
			defer r.Body.Close()
			return httpx.ReadStatusError("llm", "stream", r)
		}
		resp = r
		return nil
	}, httpx.Classify)
	if err != nil {
		return nil, mapProviderError(err)
	}

	chunks := make(chan domain.GenerationChunk)
	go c.consumeStream(ctx, resp, chunks)
	return chunks, nil
}

func (c *Client) consumeStream(ctx context.Context, resp *http.Response, chunks chan<- domain.GenerationChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == streamDonePayload {
			if payload == streamDonePayload {
				return
			}
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Providers occasionally interleave comment or keepalive frames.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		select {
		case chunks <- domain.GenerationChunk{Delta: delta}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case chunks <- domain.GenerationChunk{Err: fmt.Errorf("llm stream read: %w", err)}:
		case <-ctx.Done():
		}
	}
}

// mapProviderError folds transport-level failures into the domain error
// vocabulary the orchestrator branches on.
func mapProviderError(err error) error {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrRateLimited, "llm call", err)
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "llm call", err)
	}
	return err
}
