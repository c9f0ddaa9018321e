package http

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
)

type fakeStreamer struct {
	events []domain.StreamEvent
	gotReq domain.AskRequest
}

func (f *fakeStreamer) Ask(ctx context.Context, req domain.AskRequest) <-chan domain.StreamEvent {
	f.gotReq = req
	ch := make(chan domain.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestHandler(streamer ports.AnswerStreamer, rps float64, burst int) http.Handler {
	provider := func() ports.AnswerStreamer { return streamer }
	if streamer == nil {
		provider = func() ports.AnswerStreamer { return nil }
	}
	return NewHandler(RouterConfig{RateLimitRPS: rps, RateLimitBurst: burst}, provider, nil, nil, quietLogger())
}

func TestAskStreamsNDJSON(t *testing.T) {
	streamer := &fakeStreamer{events: []domain.StreamEvent{
		domain.LogEvent("Analizando consulta: 'hola'"),
		{Type: domain.EventMetadata, Metadata: &domain.Metadata{
			FuentesTexto:  []string{"apuntes.pdf"},
			Imagenes:      []domain.ImageCitation{},
			ContextoRagas: []string{"fragmento"},
		}},
		domain.ContentEvent("Hola"),
		domain.ContentEvent(" mundo"),
	}}
	handler := newTestHandler(streamer, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hola","persona":"aria"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}
	if streamer.gotReq.Question != "hola" || streamer.gotReq.Persona != "aria" {
		t.Fatalf("request passed through wrong: %+v", streamer.gotReq)
	}

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		types = append(types, obj["type"].(string))
		if obj["type"] == "metadata" {
			if _, ok := obj["fuentes_texto"]; !ok {
				t.Fatalf("metadata line missing fuentes_texto: %s", line)
			}
			if imgs, ok := obj["imagenes"].([]any); !ok || len(imgs) != 0 {
				t.Fatalf("imagenes must be an empty array, got %v", obj["imagenes"])
			}
		}
	}
	want := []string{"log", "metadata", "content", "content"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestAskNotReadyReturns503(t *testing.T) {
	handler := newTestHandler(nil, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hola"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), notReadyMessage) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	handler := newTestHandler(&fakeStreamer{}, 0, 0)

	for _, body := range []string{`{"question":""}`, `{"question":"   "}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestAskRejectsMalformedJSON(t *testing.T) {
	handler := newTestHandler(&fakeStreamer{}, 0, 0)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimitSheds(t *testing.T) {
	handler := newTestHandler(&fakeStreamer{}, 1, 1)

	status := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"question":"hola"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := status("/ask"); got != http.StatusOK {
		t.Fatalf("first request: %d", got)
	}
	if got := status("/ask"); got != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", got)
	}
}

func TestRateLimitExemptsOperationalEndpoints(t *testing.T) {
	handler := newTestHandler(&fakeStreamer{}, 1, 1)

	// Exhaust the bucket.
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hola"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz request %d: %d", i, rec.Code)
		}
	}
}

func TestHealthAndReadiness(t *testing.T) {
	ready := newTestHandler(&fakeStreamer{}, 0, 0)
	rec := httptest.NewRecorder()
	ready.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready readyz = %d", rec.Code)
	}

	loading := newTestHandler(nil, 0, 0)
	rec = httptest.NewRecorder()
	loading.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("loading readyz = %d", rec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	handler := newTestHandler(&fakeStreamer{}, 0, 0)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("generated request id missing from response")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}
