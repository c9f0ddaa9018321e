// Package lexical implements the in-memory BM25 index built once at startup
// from a full corpus dump. The index is read-only after construction, so
// concurrent lookups need no locking.
package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

// Okapi BM25 parameters, standard values.
const (
	k1 = 1.5
	b  = 0.75
)

type Index struct {
	docs      []domain.RetrievedDoc
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int
}

// Tokenize is the shared query/document tokenizer: lowercase, split on
// whitespace, no stemming and no stop words. Both sides must agree or
// term lookups silently miss.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func NewIndex(docs []domain.RetrievedDoc) *Index {
	idx := &Index{
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		docFreq:   make(map[string]int),
	}

	totalLen := 0
	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		idx.termFreqs[i] = freqs
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for term := range freqs {
			idx.docFreq[term]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.docs) }

// TopN returns up to n documents ranked by BM25 score, best first. Documents
// sharing no term with the query score zero and are excluded, so a query with
// no corpus overlap returns nothing. Ties keep corpus order.
func (idx *Index) TopN(query string, n int) []domain.RetrievedDoc {
	if len(idx.docs) == 0 || n <= 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	type hit struct {
		index int
		score float64
	}
	var hits []hit
	for i := range idx.docs {
		score := idx.score(terms, i)
		if score > 0 {
			hits = append(hits, hit{index: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > n {
		hits = hits[:n]
	}

	out := make([]domain.RetrievedDoc, len(hits))
	for i, h := range hits {
		out[i] = idx.docs[h.index]
	}
	return out
}

func (idx *Index) score(terms []string, doc int) float64 {
	var score float64
	docLen := float64(idx.docLens[doc])
	for _, term := range terms {
		tf := float64(idx.termFreqs[doc][term])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[term])
		n := float64(len(idx.docs))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*docLen/idx.avgDocLen))
	}
	return score
}
