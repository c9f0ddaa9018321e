package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeVectorIndex struct {
	docs []domain.RetrievedDoc
	err  error
}

func (f *fakeVectorIndex) Query(context.Context, []float32, int) ([]domain.RetrievedDoc, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RetrievedDoc, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *fakeVectorIndex) DumpAll(context.Context) ([]domain.RetrievedDoc, error) {
	return f.docs, f.err
}

type fakeLexicalIndex struct {
	docs []domain.RetrievedDoc
}

func (f *fakeLexicalIndex) TopN(string, int) []domain.RetrievedDoc {
	out := make([]domain.RetrievedDoc, len(f.docs))
	copy(out, f.docs)
	return out
}

func streamOf(deltas ...string) func(context.Context, []domain.ChatMessage) (<-chan domain.GenerationChunk, error) {
	return func(context.Context, []domain.ChatMessage) (<-chan domain.GenerationChunk, error) {
		ch := make(chan domain.GenerationChunk, len(deltas))
		for _, d := range deltas {
			ch <- domain.GenerationChunk{Delta: d}
		}
		close(ch)
		return ch, nil
	}
}

func collectEvents(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for event stream to close")
		}
	}
}

func newTestPipeline(completer *fakeCompleter, text, image *HybridRetriever, scorer *fakeScorer) *AskPipeline {
	return NewAskPipeline(
		DefaultPipelineConfig(),
		NewQueryRewriter(completer, nil),
		text,
		image,
		NewReranker(scorer, nil),
		completer,
		nil,
		nil,
	)
}

func kafkaCorpora() (*HybridRetriever, *HybridRetriever) {
	textDocs := []domain.RetrievedDoc{
		{Text: "Kafka usa particiones para escalar.", Source: "kafka_notes.pdf", Subject: "Big Data", Path: "docs/kafka_notes.pdf"},
		{Text: "Los brokers replican particiones.", Source: "kafka_notes.pdf", Subject: "Big Data", Path: "docs/kafka_notes2.pdf"},
	}
	imageDocs := []domain.RetrievedDoc{
		{Text: "Diagrama de la arquitectura de Kafka.", Source: "kafka_arch.png", Subject: "Big Data", Path: "img/kafka_arch.png"},
	}
	text := NewHybridRetriever("text", fakeEmbedder{}, &fakeVectorIndex{docs: textDocs}, &fakeLexicalIndex{docs: textDocs}, nil)
	image := NewHybridRetriever("image", fakeEmbedder{}, &fakeVectorIndex{docs: imageDocs}, &fakeLexicalIndex{docs: imageDocs}, nil)
	return text, image
}

func TestPipelineHappyPath(t *testing.T) {
	completer := &fakeCompleter{
		response: "Particionado en Kafka",
		streamFn: streamOf("Kafka", " escala", " por particiones."),
	}
	// Zero logits calibrate to ~37.8%, above the cutoff, so the image
	// survives filtering.
	scorer := &fakeScorer{}
	text, image := kafkaCorpora()

	p := newTestPipeline(completer, text, image, scorer)
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "¿Cómo escala Kafka?"}))

	var metadataIdx, firstContentIdx = -1, -1
	var answer strings.Builder
	for i, ev := range events {
		switch ev.Type {
		case domain.EventMetadata:
			if metadataIdx != -1 {
				t.Fatal("metadata emitted more than once")
			}
			metadataIdx = i
		case domain.EventContent:
			if firstContentIdx == -1 {
				firstContentIdx = i
			}
			answer.WriteString(ev.Delta)
		case domain.EventError:
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
	}
	if metadataIdx == -1 {
		t.Fatal("no metadata event")
	}
	if firstContentIdx != -1 && firstContentIdx < metadataIdx {
		t.Fatal("content emitted before metadata")
	}
	if answer.String() != "Kafka escala por particiones." {
		t.Fatalf("answer = %q", answer.String())
	}

	meta := events[metadataIdx].Metadata
	if meta == nil {
		t.Fatal("metadata event has nil payload")
	}
	if len(meta.FuentesTexto) != 1 || meta.FuentesTexto[0] != "kafka_notes.pdf" {
		t.Fatalf("fuentes_texto = %v", meta.FuentesTexto)
	}
	if len(meta.Imagenes) != 1 {
		t.Fatalf("imagenes = %v, want 1 citation", meta.Imagenes)
	}
	if meta.Imagenes[0].Path != "img/kafka_arch.png" || meta.Imagenes[0].Score <= 0 {
		t.Fatalf("image citation = %+v", meta.Imagenes[0])
	}
	if !strings.Contains(meta.DebugInfo.QueryRewritten, ">>") {
		t.Fatalf("query_rewritten = %q", meta.DebugInfo.QueryRewritten)
	}
}

func TestPipelineDeduplicatesSources(t *testing.T) {
	docs := []domain.RetrievedDoc{
		{Text: "fragmento uno", Source: "apuntes.pdf", Subject: "IA", Path: "a1"},
		{Text: "fragmento dos", Source: "apuntes.pdf", Subject: "IA", Path: "a2"},
	}
	text := NewHybridRetriever("text", fakeEmbedder{}, &fakeVectorIndex{docs: docs}, nil, nil)
	image := NewHybridRetriever("image", nil, nil, nil, nil)
	completer := &fakeCompleter{response: "q", streamFn: streamOf("ok")}

	p := newTestPipeline(completer, text, image, &fakeScorer{})
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "pregunta"}))

	for _, ev := range events {
		if ev.Type == domain.EventMetadata {
			if len(ev.Metadata.FuentesTexto) != 1 || ev.Metadata.FuentesTexto[0] != "apuntes.pdf" {
				t.Fatalf("fuentes_texto = %v", ev.Metadata.FuentesTexto)
			}
			return
		}
	}
	t.Fatal("no metadata event")
}

func TestPipelineEmptyCorporaStillAnswers(t *testing.T) {
	// Both corpora disabled: the prompt gets the empty-context placeholder
	// and the persona fallback governs the answer, but the stream shape is
	// identical to the happy path.
	text := NewHybridRetriever("text", nil, nil, nil, nil)
	image := NewHybridRetriever("image", nil, nil, nil, nil)
	completer := &fakeCompleter{
		response: "insulto reformulado",
		streamFn: streamOf(domain.PersonaArIA.Fallback),
	}

	p := newTestPipeline(completer, text, image, &fakeScorer{})
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "eres una caquita"}))

	var sawMetadata bool
	var answer strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case domain.EventMetadata:
			sawMetadata = true
			if len(ev.Metadata.FuentesTexto) != 0 {
				t.Fatalf("expected no sources, got %v", ev.Metadata.FuentesTexto)
			}
			if ev.Metadata.Imagenes == nil || len(ev.Metadata.Imagenes) != 0 {
				t.Fatalf("expected empty (non-nil) imagenes, got %#v", ev.Metadata.Imagenes)
			}
		case domain.EventContent:
			answer.WriteString(ev.Delta)
		case domain.EventError:
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
	}
	if !sawMetadata {
		t.Fatal("no metadata event")
	}
	if answer.String() != domain.PersonaArIA.Fallback {
		t.Fatalf("answer = %q", answer.String())
	}
}

func TestPipelineRerankFailureDegradesToEmptyEvidence(t *testing.T) {
	text, image := kafkaCorpora()
	completer := &fakeCompleter{response: "q", streamFn: streamOf("respuesta")}
	scorer := &fakeScorer{err: errors.New("reranker down")}

	p := newTestPipeline(completer, text, image, scorer)
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "pregunta"}))

	for _, ev := range events {
		if ev.Type == domain.EventError {
			t.Fatalf("rerank failure must not fail the stream: %s", ev.Message)
		}
		if ev.Type == domain.EventMetadata {
			if len(ev.Metadata.FuentesTexto) != 0 || len(ev.Metadata.Imagenes) != 0 {
				t.Fatal("expected empty evidence after rerank failure")
			}
		}
	}
}

func TestPipelineRateLimitEmitsFriendlyError(t *testing.T) {
	text := NewHybridRetriever("text", nil, nil, nil, nil)
	image := NewHybridRetriever("image", nil, nil, nil, nil)
	completer := &fakeCompleter{
		response: "q",
		streamFn: func(context.Context, []domain.ChatMessage) (<-chan domain.GenerationChunk, error) {
			return nil, domain.WrapError(domain.ErrRateLimited, "llm call", errors.New("429"))
		},
	}

	p := newTestPipeline(completer, text, image, &fakeScorer{})
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "pregunta"}))

	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("last event type = %s", last.Type)
	}
	if last.Message != rateLimitMessage {
		t.Fatalf("error message = %q", last.Message)
	}
	for _, ev := range events {
		if ev.Type == domain.EventContent {
			t.Fatal("no content may follow a failed generation start")
		}
	}
}

func TestPipelineMidStreamFailureEmitsTechnicalError(t *testing.T) {
	text := NewHybridRetriever("text", nil, nil, nil, nil)
	image := NewHybridRetriever("image", nil, nil, nil, nil)
	completer := &fakeCompleter{
		response: "q",
		streamFn: func(context.Context, []domain.ChatMessage) (<-chan domain.GenerationChunk, error) {
			ch := make(chan domain.GenerationChunk, 2)
			ch <- domain.GenerationChunk{Delta: "parcial"}
			ch <- domain.GenerationChunk{Err: errors.New("connection reset")}
			close(ch)
			return ch, nil
		},
	}

	p := newTestPipeline(completer, text, image, &fakeScorer{})
	events := collectEvents(t, p.Ask(context.Background(), domain.AskRequest{Question: "pregunta"}))

	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("last event type = %s", last.Type)
	}
	if !strings.HasPrefix(last.Message, "Error técnico:") {
		t.Fatalf("error message = %q", last.Message)
	}
}

func TestPipelineCancellationStopsStream(t *testing.T) {
	text, image := kafkaCorpora()
	completer := &fakeCompleter{response: "q", streamFn: streamOf("a", "b", "c")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPipeline(completer, text, image, &fakeScorer{})

	events := collectEvents(t, p.Ask(ctx, domain.AskRequest{Question: "pregunta"}))
	// A cancelled consumer gets at most nothing; the channel must still
	// close promptly.
	for _, ev := range events {
		if ev.Type == domain.EventContent {
			t.Fatal("content emitted after cancellation")
		}
	}
}

func TestValidateRequest(t *testing.T) {
	if _, err := ValidateRequest(domain.AskRequest{Question: "   "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	req, err := ValidateRequest(domain.AskRequest{Question: "  hola  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Question != "hola" {
		t.Fatalf("question not trimmed: %q", req.Question)
	}
}
