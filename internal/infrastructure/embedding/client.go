// Package embedding talks to an OpenAI-compatible embeddings endpoint. One
// client per corpus, since each corpus lives in its own embedding space.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/httpx"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg       Config
	http      *http.Client
	exec      *resilience.Executor
	operation string
}

func NewClient(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: timeout},
		exec:      exec,
		operation: "embed:" + cfg.Model,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	var out embedResponse
	err := c.exec.Execute(ctx, c.operation, func(ctx context.Context) error {
		return httpx.PostJSON(ctx, c.http, url, headers, embedRequest{
			Model: c.cfg.Model,
			Input: []string{text},
		}, &out, "embedding", c.cfg.Model)
	}, httpx.Classify)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding %s: empty response", c.cfg.Model)
	}
	return out.Data[0].Embedding, nil
}
