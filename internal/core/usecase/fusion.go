package usecase

import (
	"sort"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

const defaultRRFK = 60

// fuseRRF merges ranked candidate lists into one ranking using reciprocal
// rank scoring: each appearance at 0-based rank r contributes 1/(rrfK+r) to
// the candidate's accumulated score. A candidate found by both the dense and
// the lexical path accumulates both contributions, which is how agreement
// between methods is rewarded. Deterministic; ties keep first-seen input
// order.
func fuseRRF(lists [][]domain.RetrievedDoc, rrfK int) []domain.FusedCandidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	type slot struct {
		doc   domain.RetrievedDoc
		score float64
		order int
	}
	acc := make(map[string]*slot)
	next := 0
	for _, list := range lists {
		for rank, doc := range list {
			key := doc.IdentityKey()
			s, ok := acc[key]
			if !ok {
				s = &slot{doc: doc, order: next}
				next++
				acc[key] = s
			}
			s.score += 1.0 / float64(rrfK+rank)
		}
	}

	slots := make([]*slot, 0, len(acc))
	for _, s := range acc {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].score != slots[j].score {
			return slots[i].score > slots[j].score
		}
		return slots[i].order < slots[j].order
	})

	out := make([]domain.FusedCandidate, 0, len(slots))
	for _, s := range slots {
		out = append(out, domain.FusedCandidate{Doc: s.doc, Score: s.score})
	}
	return out
}

func trimCandidates(candidates []domain.FusedCandidate, limit int) []domain.FusedCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
