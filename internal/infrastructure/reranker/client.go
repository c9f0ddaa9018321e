// Package reranker calls the cross-encoder scoring service. The service
// scores each (query, document) pair jointly and returns raw logits.
package reranker

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
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	exec *resilience.Executor
}

func NewClient(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		exec: exec,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one logit per document, in input order. The logits are
// unbounded; calibration is the caller's concern.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/rerank"

	var out rerankResponse
	err := c.exec.Execute(ctx, "rerank", func(ctx context.Context) error {
		return httpx.PostJSON(ctx, c.http, url, nil, rerankRequest{
			Query:     query,
			Documents: documents,
		}, &out, "reranker", "score")
	}, httpx.Classify)
	if err != nil {
		return nil, err
	}
	if len(out.Scores) != len(documents) {
		return nil, fmt.Errorf("reranker: got %d scores for %d documents", len(out.Scores), len(documents))
	}
	return out.Scores, nil
}
