// Package chroma is a REST client for the Chroma vector store. Collections
// are addressed by name; the server-side collection ID is resolved lazily on
// first use and cached.
package chroma

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/httpx"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/resilience"
)

const dumpPageSize = 500

type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	exec *resilience.Executor

	mu           sync.Mutex
	collectionID string
}

func NewClient(cfg Config, exec *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		exec: exec,
	}
}

func (c *Client) Collection() string { return c.cfg.Collection }

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// resolveCollectionID caches the name-to-ID lookup. A missing collection
// surfaces as a 404 StatusError, which startup treats as a disabled corpus
// rather than a fatal fault.
func (c *Client) resolveCollectionID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Collection)
	var info collectionInfo
	err := c.exec.Execute(ctx, "chroma:resolve", func(ctx context.Context) error {
		return httpx.GetJSON(ctx, c.http, url, nil, &info, "chroma", "get collection "+c.cfg.Collection)
	}, httpx.Classify)
	if err != nil {
		return "", err
	}
	if info.ID == "" {
		return "", fmt.Errorf("chroma: collection %q resolved without id", c.cfg.Collection)
	}
	c.collectionID = info.ID
	return c.collectionID, nil
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Query returns the k nearest documents, best-first.
func (c *Client) Query(ctx context.Context, vector []float32, k int) ([]domain.RetrievedDoc, error) {
	id, err := c.resolveCollectionID(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", strings.TrimRight(c.cfg.BaseURL, "/"), id)
	var out queryResponse
	err = c.exec.Execute(ctx, "chroma:query:"+c.cfg.Collection, func(ctx context.Context) error {
		return httpx.PostJSON(ctx, c.http, url, nil, queryRequest{
			QueryEmbeddings: [][]float32{vector},
			NResults:        k,
			Include:         []string{"documents", "metadatas"},
		}, &out, "chroma", "query "+c.cfg.Collection)
	}, httpx.Classify)
	if err != nil {
		return nil, err
	}
	if len(out.Documents) == 0 {
		return nil, nil
	}

	docs := make([]domain.RetrievedDoc, 0, len(out.Documents[0]))
	for i, text := range out.Documents[0] {
		var meta map[string]any
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			meta = out.Metadatas[0][i]
		}
		docs = append(docs, docFromChroma(text, meta))
	}
	return docs, nil
}

type getRequest struct {
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	Include []string `json:"include"`
}

type getResponse struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

// DumpAll pages through the entire collection. Used once at startup to build
// the in-memory lexical index.
func (c *Client) DumpAll(ctx context.Context) ([]domain.RetrievedDoc, error) {
	id, err := c.resolveCollectionID(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/collections/%s/get", strings.TrimRight(c.cfg.BaseURL, "/"), id)

	var all []domain.RetrievedDoc
	for offset := 0; ; offset += dumpPageSize {
		var page getResponse
		err := c.exec.Execute(ctx, "chroma:dump:"+c.cfg.Collection, func(ctx context.Context) error {
			return httpx.PostJSON(ctx, c.http, url, nil, getRequest{
				Limit:   dumpPageSize,
				Offset:  offset,
				Include: []string{"documents", "metadatas"},
			}, &page, "chroma", "dump "+c.cfg.Collection)
		}, httpx.Classify)
		if err != nil {
			return nil, err
		}
		for i, text := range page.Documents {
			var meta map[string]any
			if i < len(page.Metadatas) {
				meta = page.Metadatas[i]
			}
			all = append(all, docFromChroma(text, meta))
		}
		if len(page.Documents) < dumpPageSize {
			break
		}
	}
	return all, nil
}

func docFromChroma(text string, meta map[string]any) domain.RetrievedDoc {
	return domain.RetrievedDoc{
		Text:    text,
		Source:  metaString(meta, "source"),
		Subject: metaString(meta, "asignatura"),
		Path:    metaString(meta, "path"),
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// IsMissingCollection reports whether err is the collection-not-found case.
func IsMissingCollection(err error) bool {
	var statusErr *httpx.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
