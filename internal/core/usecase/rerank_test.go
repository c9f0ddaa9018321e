package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

type fakeScorer struct {
	scores []float64
	err    error
	gotQ   string
}

func (f *fakeScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	f.gotQ = query
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	out := make([]float64, len(documents))
	return out, nil
}

func candidates(paths ...string) []domain.FusedCandidate {
	out := make([]domain.FusedCandidate, len(paths))
	for i, p := range paths {
		out[i] = domain.FusedCandidate{Doc: domain.RetrievedDoc{Path: p, Text: "text " + p}}
	}
	return out
}

func TestCalibrateConfidence(t *testing.T) {
	tests := []struct {
		name   string
		logit  float64
		offset float64
		cutoff float64
		want   float64
	}{
		{"at offset gives 50", 0.5, 0.5, 25, 50},
		{"far below cutoff floors to zero", -5, 0.5, 25, 0},
		{"just under cutoff floors before rounding", -1.0987, 0, 25, 0},
		{"high logit saturates", 20, 0.5, 25, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalibrateConfidence(tt.logit, tt.offset, tt.cutoff)
			if got != tt.want {
				t.Fatalf("CalibrateConfidence(%v) = %v, want %v", tt.logit, got, tt.want)
			}
		})
	}
}

func TestCalibrateConfidenceMonotonic(t *testing.T) {
	prev := -1.0
	for logit := -10.0; logit <= 10.0; logit += 0.25 {
		got := CalibrateConfidence(logit, 0.5, 25)
		if got < prev {
			t.Fatalf("confidence decreased at logit %v: %v < %v", logit, got, prev)
		}
		prev = got
	}
}

func TestCalibrateConfidenceRoundsToOneDecimal(t *testing.T) {
	got := CalibrateConfidence(0.9, 0.5, 25)
	// sigmoid(0.4)*100 = 59.8687...
	if got != 59.9 {
		t.Fatalf("got %v, want 59.9", got)
	}
}

func TestRerankTextKeepsTopNRegardlessOfScore(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{-8, -9, -7, -10, -6}}
	r := NewReranker(scorer, nil)

	results, err := r.RerankText(context.Background(), "q", candidates("a", "b", "c", "d", "e"), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	// Best-first regardless of all logits being negative.
	if results[0].Doc.Path != "e" || results[1].Doc.Path != "c" {
		t.Fatalf("wrong order: %s, %s", results[0].Doc.Path, results[1].Doc.Path)
	}
	for i, res := range results {
		if res.Rank != i {
			t.Fatalf("rank %d stored as %d", i, res.Rank)
		}
	}
}

func TestRerankImagesFiltersZeroConfidence(t *testing.T) {
	// Logits 5 and 4 calibrate high, -5 floors to zero and is dropped.
	scorer := &fakeScorer{scores: []float64{5, -5, 4}}
	r := NewReranker(scorer, nil)

	results, err := r.RerankImages(context.Background(), "q", candidates("a", "b", "c"), 3, 0.5, 25, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(results))
	}
	for _, res := range results {
		if res.Doc.Path == "b" {
			t.Fatalf("zero-confidence candidate survived")
		}
		if res.Confidence == 0 {
			t.Fatalf("survivor has zero confidence")
		}
	}
}

func TestRerankImagesTruncatesAfterFiltering(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{5, 6, 7, 8}}
	r := NewReranker(scorer, nil)

	results, err := r.RerankImages(context.Background(), "q", candidates("a", "b", "c", "d"), 3, 0.5, 25, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected top 3, got %d", len(results))
	}
	if results[0].Doc.Path != "d" {
		t.Fatalf("expected highest logit first, got %s", results[0].Doc.Path)
	}
}

func TestRerankPropagatesScorerError(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("scorer down")}
	r := NewReranker(scorer, nil)

	if _, err := r.RerankText(context.Background(), "q", candidates("a"), 4); err == nil {
		t.Fatal("expected error from text rerank")
	}
	if _, err := r.RerankImages(context.Background(), "q", candidates("a"), 3, 0.5, 25, nil); err == nil {
		t.Fatal("expected error from image rerank")
	}
}

func TestRerankRejectsScoreCountMismatch(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{1}}
	r := NewReranker(scorer, nil)

	if _, err := r.RerankText(context.Background(), "q", candidates("a", "b"), 4); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(&fakeScorer{}, nil)
	results, err := r.RerankText(context.Background(), "q", nil, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
