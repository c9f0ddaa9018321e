package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
)

// RetrievalOutcome carries each method's candidates together with its
// failure, so the degrade-and-continue policy is an explicit branch in the
// orchestrator instead of a swallowed exception.
type RetrievalOutcome struct {
	Dense      []domain.RetrievedDoc
	Lexical    []domain.RetrievedDoc
	DenseErr   error
	LexicalErr error
}

// HybridRetriever runs the dense and lexical lookups for one corpus. A
// corpus without a configured index is not an error: that path simply
// returns nothing.
type HybridRetriever struct {
	corpus   string
	embedder ports.Embedder
	vector   ports.VectorIndex
	lexical  ports.LexicalIndex
	logger   *slog.Logger
}

func NewHybridRetriever(
	corpus string,
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		corpus:   corpus,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		logger:   logger,
	}
}

func (h *HybridRetriever) Corpus() string { return h.corpus }

// Retrieve fans the two methods out concurrently and joins before returning.
// A failure in one method never affects the other.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, k int) RetrievalOutcome {
	var out RetrievalOutcome

	g := new(errgroup.Group)
	g.Go(func() error {
		out.Dense, out.DenseErr = h.dense(ctx, query, k)
		return nil
	})
	g.Go(func() error {
		out.Lexical, out.LexicalErr = h.lexicalTop(query, k)
		return nil
	})
	_ = g.Wait()

	h.logger.Debug("hybrid_retrieval",
		"corpus", h.corpus,
		"dense_hits", len(out.Dense),
		"lexical_hits", len(out.Lexical),
	)
	return out
}

func (h *HybridRetriever) dense(ctx context.Context, query string, k int) ([]domain.RetrievedDoc, error) {
	if h.vector == nil || h.embedder == nil {
		return nil, nil
	}

	vector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := h.vector.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	for i := range docs {
		docs[i].Method = domain.MethodDense
	}
	return docs, nil
}

func (h *HybridRetriever) lexicalTop(query string, k int) ([]domain.RetrievedDoc, error) {
	if h.lexical == nil {
		return nil, nil
	}
	docs := h.lexical.TopN(query, k)
	for i := range docs {
		docs[i].Method = domain.MethodLexical
	}
	return docs, nil
}
