// Package http is the inbound HTTP adapter: a single streaming ask endpoint
// plus health, readiness and metrics surfaces.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/usecase"
)

const notReadyMessage = "Cargando modelos, por favor espere..."

// PipelineProvider returns the current pipeline, or nil while warmup is
// still running. Checked per request so the service can accept connections
// before the models and indexes are loaded.
type PipelineProvider func() ports.AnswerStreamer

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type Router struct {
	provider PipelineProvider
	logger   *slog.Logger
}

// NewHandler wires the route table with the middleware chain: request ID,
// access log, metrics, rate limit.
func NewHandler(
	cfg RouterConfig,
	provider PipelineProvider,
	metricsHandler http.Handler,
	instrument func(http.Handler) http.Handler,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	router := &Router{provider: provider, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", router.handleAsk)
	mux.HandleFunc("GET /healthz", router.handleHealthz)
	mux.HandleFunc("GET /readyz", router.handleReadyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)(handler)
	if instrument != nil {
		handler = instrument(handler)
	}
	handler = accessLogMiddleware(logger)(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if rt.provider() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) handleAsk(w http.ResponseWriter, r *http.Request) {
	pipeline := rt.provider()
	if pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": notReadyMessage})
		return
	}

	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req, err := usecase.ValidateRequest(domain.AskRequest{
		Question: body.Question,
		History:  body.History,
		Persona:  body.Persona,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question must not be empty"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	encoder := json.NewEncoder(w)
	for ev := range pipeline.Ask(ctx, req) {
		wire := wireEvent(ev)
		if wire == nil {
			continue
		}
		if err := encoder.Encode(wire); err != nil {
			// Client went away; the context cancellation stops the pipeline.
			rt.logger.Debug("stream_write_failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
