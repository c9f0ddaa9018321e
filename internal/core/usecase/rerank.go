package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
)

// Reranker applies cross-encoder scoring to fused candidates. The two
// corpora get asymmetric treatment: text keeps its top slice regardless of
// score, images are calibrated to a confidence percentage and filtered.
type Reranker struct {
	scorer ports.RelevanceScorer
	logger *slog.Logger
}

func NewReranker(scorer ports.RelevanceScorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// CalibrateConfidence maps a raw cross-encoder logit to a 0-100 confidence
// percentage through a shifted sigmoid. Scores under cutoff floor to exactly
// zero; the cutoff applies to the raw sigmoid value, before rounding, so a
// 24.96 does not sneak through as 25.0. Survivors round to one decimal.
func CalibrateConfidence(logit, offset, cutoff float64) float64 {
	score := 100 / (1 + math.Exp(-(logit - offset)))
	if score < cutoff {
		return 0
	}
	return math.Round(score*10) / 10
}

// RerankText reorders text candidates by raw relevance logit and keeps the
// top topN unconditionally. Text evidence is never confidence-filtered: a
// weak fragment still gives the generator something to decline over.
func (r *Reranker) RerankText(ctx context.Context, query string, candidates []domain.FusedCandidate, topN int) ([]domain.RankedResult, error) {
	scored, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank text: %w", err)
	}
	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	for i := range scored {
		scored[i].Rank = i
	}
	return scored, nil
}

// RerankImages calibrates each candidate's logit into a confidence score,
// drops zero-confidence candidates, and keeps the top topN of the rest.
func (r *Reranker) RerankImages(ctx context.Context, query string, candidates []domain.FusedCandidate, topN int, offset, cutoff float64, observer PipelineObserver) ([]domain.RankedResult, error) {
	scored, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank images: %w", err)
	}
	if observer == nil {
		observer = noopObserver{}
	}

	kept := scored[:0]
	for _, res := range scored {
		res.Confidence = CalibrateConfidence(res.Relevance, offset, cutoff)
		observer.ImageConfidence(res.Confidence)
		if res.Confidence == 0 {
			continue
		}
		kept = append(kept, res)
	}
	if topN > 0 && len(kept) > topN {
		kept = kept[:topN]
	}
	for i := range kept {
		kept[i].Rank = i
	}
	return kept, nil
}

// score runs one batched scorer call and sorts best-first. Ties keep fused
// order, so the RRF ranking acts as the tie break.
func (r *Reranker) score(ctx context.Context, query string, candidates []domain.FusedCandidate) ([]domain.RankedResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Doc.Text
	}
	logits, err := r.scorer.Score(ctx, query, documents)
	if err != nil {
		return nil, err
	}
	if len(logits) != len(candidates) {
		return nil, fmt.Errorf("scorer returned %d scores for %d documents", len(logits), len(candidates))
	}

	results := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RankedResult{Doc: c.Doc, Relevance: logits[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	return results, nil
}
