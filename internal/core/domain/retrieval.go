package domain

import "unicode/utf8"

type RetrievalMethod string

const (
	MethodDense   RetrievalMethod = "dense"
	MethodLexical RetrievalMethod = "lexical"
)

// RetrievedDoc is one candidate returned by a single retrieval method.
type RetrievedDoc struct {
	Text    string
	Source  string
	Subject string
	Path    string
	Method  RetrievalMethod
}

const identityPrefixChars = 100

// IdentityKey defines candidate equality across retrieval methods: the file
// path when present, otherwise a prefix of the document text. Two candidates
// with the same key are the same evidence item.
func (d RetrievedDoc) IdentityKey() string {
	if d.Path != "" {
		return d.Path
	}
	if utf8.RuneCountInString(d.Text) <= identityPrefixChars {
		return d.Text
	}
	runes := []rune(d.Text)
	return string(runes[:identityPrefixChars])
}

// FusedCandidate is a RetrievedDoc with its accumulated RRF score.
type FusedCandidate struct {
	Doc   RetrievedDoc
	Score float64
}

// RankedResult is a fused candidate after cross-encoder reranking.
// Confidence is only meaningful for image evidence; text evidence keeps it at
// zero and is ranked by the raw relevance logit alone.
type RankedResult struct {
	Doc        RetrievedDoc
	Relevance  float64
	Confidence float64
	Rank       int
}

// EvidenceContext is the final corpus-mixed evidence set handed to prompt
// assembly. Rebuilt per request, never persisted.
type EvidenceContext struct {
	Text   []RankedResult
	Images []RankedResult
}

type ImageCitation struct {
	Path     string  `json:"path"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}
