package ports

import (
	"context"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

// Embedder encodes a search query into one corpus's embedding space.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbor search against a persistent
// collection. Hits come back best-first (increasing distance).
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.RetrievedDoc, error)
	DumpAll(ctx context.Context) ([]domain.RetrievedDoc, error)
}

// LexicalIndex is the read-only in-memory term-frequency index built once at
// startup. TopN is pure computation and never fails.
type LexicalIndex interface {
	TopN(query string, n int) []domain.RetrievedDoc
}

// RelevanceScorer scores (query, document) pairs jointly and returns one raw
// logit per document, in input order. Higher means more relevant; the range
// is unbounded and may be negative.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// ChatCompleter covers both generation modes the pipeline needs: a single
// shot call for query rewriting and an incremental stream for the answer.
// Stream normalizes the provider's wire shape into GenerationChunk values;
// the channel is closed when the provider finishes or fails.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts CompletionOptions) (string, error)
	Stream(ctx context.Context, messages []domain.ChatMessage) (<-chan domain.GenerationChunk, error)
}
