// Package bootstrap wires configuration, adapters and the pipeline into a
// runnable application. The HTTP server starts immediately; model and index
// warmup runs in the background and the pipeline is published atomically
// once ready.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	httpapi "github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/adapters/http"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/config"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/usecase"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/embedding"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/httpx"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/lexical"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/llm/openai"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/reranker"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/resilience"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/infrastructure/vector/chroma"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/observability/metrics"
)

type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.ServerMetrics

	pipeline atomic.Pointer[usecase.AskPipeline]
}

func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewServerMetrics(),
	}
}

// Pipeline returns the published pipeline or nil while warmup is running.
func (a *App) Pipeline() ports.AnswerStreamer {
	p := a.pipeline.Load()
	if p == nil {
		return nil
	}
	return p
}

func (a *App) Handler() http.Handler {
	return httpapi.NewHandler(
		httpapi.RouterConfig{
			RateLimitRPS:   a.cfg.Server.RateLimitRPS,
			RateLimitBurst: a.cfg.Server.RateLimitBurst,
		},
		a.Pipeline,
		a.metrics.Handler(),
		a.metrics.Middleware,
		a.logger,
	)
}

// Warmup builds every collaborator client and the in-memory lexical indexes,
// then publishes the pipeline. A corpus whose collection does not exist is
// disabled with a warning; an unreachable vector store is fatal.
func (a *App) Warmup(ctx context.Context) error {
	exec := resilience.NewExecutor(resilience.Config{
		BreakerEnabled:          a.cfg.Resilience.BreakerEnabled,
		BreakerMinRequests:      a.cfg.Resilience.BreakerMinRequests,
		BreakerFailureRatio:     a.cfg.Resilience.BreakerFailureRatio,
		BreakerOpenTimeout:      a.cfg.Resilience.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: a.cfg.Resilience.BreakerHalfOpenMaxCalls,
	})

	chat := openai.NewClient(openai.Config{
		BaseURL: a.cfg.LLM.BaseURL,
		APIKey:  a.cfg.LLM.APIKey,
		Model:   a.cfg.LLM.Model,
		Timeout: a.cfg.LLM.Timeout,
	}, exec)
	scorer := reranker.NewClient(reranker.Config{
		BaseURL: a.cfg.Reranker.URL,
		Timeout: a.cfg.Reranker.Timeout,
	}, exec)

	textRetriever, err := a.loadCorpus(ctx, exec, "text", a.cfg.Chroma.TextCollection, a.cfg.Embedding.TextModel)
	if err != nil {
		return fmt.Errorf("warmup text corpus: %w", err)
	}
	imageRetriever, err := a.loadCorpus(ctx, exec, "image", a.cfg.Chroma.ImageCollection, a.cfg.Embedding.ImageModel)
	if err != nil {
		return fmt.Errorf("warmup image corpus: %w", err)
	}

	pipeline := usecase.NewAskPipeline(
		usecase.PipelineConfig{
			RetrievalK:       a.cfg.Pipeline.RetrievalK,
			TextFusionLimit:  a.cfg.Pipeline.TextFusionLimit,
			ImageFusionLimit: a.cfg.Pipeline.ImageFusionLimit,
			TextTopN:         a.cfg.Pipeline.TextTopN,
			ImageTopN:        a.cfg.Pipeline.ImageTopN,
			RRFK:             a.cfg.Pipeline.RRFK,
			ConfidenceOffset: a.cfg.Pipeline.ConfidenceOffset,
			ConfidenceCutoff: a.cfg.Pipeline.ConfidenceCutoff,
			RewriteTimeout:   a.cfg.Pipeline.RewriteTimeout,
			RetrievalTimeout: a.cfg.Pipeline.RetrievalTimeout,
			RerankTimeout:    a.cfg.Pipeline.RerankTimeout,
		},
		usecase.NewQueryRewriter(chat, a.logger),
		textRetriever,
		imageRetriever,
		usecase.NewReranker(scorer, a.logger),
		chat,
		a.metrics,
		a.logger,
	)
	a.pipeline.Store(pipeline)
	a.logger.Info("warmup_complete")
	return nil
}

// loadCorpus resolves one collection and dumps it into a lexical index. A
// missing or broken collection disables both retrieval paths for that
// corpus; only transport-level failures abort startup.
func (a *App) loadCorpus(ctx context.Context, exec *resilience.Executor, corpus, collection, model string) (*usecase.HybridRetriever, error) {
	if collection == "" {
		a.logger.Warn("corpus_disabled", "corpus", corpus, "reason", "no collection configured")
		return usecase.NewHybridRetriever(corpus, nil, nil, nil, a.logger), nil
	}

	index := chroma.NewClient(chroma.Config{
		BaseURL:    a.cfg.Chroma.URL,
		Collection: collection,
		Timeout:    a.cfg.Chroma.Timeout,
	}, exec)

	docs, err := index.DumpAll(ctx)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) {
			a.logger.Warn("corpus_disabled", "corpus", corpus, "collection", collection, "error", err)
			return usecase.NewHybridRetriever(corpus, nil, nil, nil, a.logger), nil
		}
		return nil, err
	}

	embedder := embedding.NewClient(embedding.Config{
		BaseURL: a.cfg.Embedding.URL,
		Model:   model,
		APIKey:  a.cfg.Embedding.APIKey,
		Timeout: a.cfg.Embedding.Timeout,
	}, exec)
	lexIndex := lexical.NewIndex(docs)

	a.logger.Info("corpus_loaded", "corpus", corpus, "collection", collection, "documents", lexIndex.Len())
	return usecase.NewHybridRetriever(corpus, embedder, index, lexIndex, a.logger), nil
}
