package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
)

const rateLimitMessage = "⏳ **Límite de servicio alcanzado:** El modelo está saturado temporalmente. Por favor, espera 30 minutos antes de volver a preguntar."

// PipelineConfig holds the tunable constants of one pipeline instance. All
// values have working defaults; zero fields are normalized on construction.
type PipelineConfig struct {
	RetrievalK       int
	TextFusionLimit  int
	ImageFusionLimit int
	TextTopN         int
	ImageTopN        int
	RRFK             int
	ConfidenceOffset float64
	ConfidenceCutoff float64

	RewriteTimeout   time.Duration
	RetrievalTimeout time.Duration
	RerankTimeout    time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		RetrievalK:       10,
		TextFusionLimit:  15,
		ImageFusionLimit: 10,
		TextTopN:         4,
		ImageTopN:        3,
		RRFK:             60,
		ConfidenceOffset: 0.5,
		ConfidenceCutoff: 25.0,
		RewriteTimeout:   15 * time.Second,
		RetrievalTimeout: 30 * time.Second,
		RerankTimeout:    30 * time.Second,
	}
}

func (c PipelineConfig) normalize() PipelineConfig {
	def := DefaultPipelineConfig()
	if c.RetrievalK <= 0 {
		c.RetrievalK = def.RetrievalK
	}
	if c.TextFusionLimit <= 0 {
		c.TextFusionLimit = def.TextFusionLimit
	}
	if c.ImageFusionLimit <= 0 {
		c.ImageFusionLimit = def.ImageFusionLimit
	}
	if c.TextTopN <= 0 {
		c.TextTopN = def.TextTopN
	}
	if c.ImageTopN <= 0 {
		c.ImageTopN = def.ImageTopN
	}
	if c.RRFK <= 0 {
		c.RRFK = def.RRFK
	}
	if c.ConfidenceCutoff <= 0 {
		c.ConfidenceCutoff = def.ConfidenceCutoff
	}
	if c.RewriteTimeout <= 0 {
		c.RewriteTimeout = def.RewriteTimeout
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = def.RetrievalTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = def.RerankTimeout
	}
	return c
}

// AskPipeline drives one question through rewrite, hybrid retrieval over both
// corpora, fusion, rerank, prompt assembly and streamed generation. Every
// stage before generation degrades to empty results on failure; only the
// generation stage can end the stream with an error event.
type AskPipeline struct {
	cfg      PipelineConfig
	rewriter *QueryRewriter
	text     *HybridRetriever
	image    *HybridRetriever
	reranker *Reranker
	chat     ports.ChatCompleter
	observer PipelineObserver
	logger   *slog.Logger
}

func NewAskPipeline(
	cfg PipelineConfig,
	rewriter *QueryRewriter,
	text *HybridRetriever,
	image *HybridRetriever,
	reranker *Reranker,
	chat ports.ChatCompleter,
	observer PipelineObserver,
	logger *slog.Logger,
) *AskPipeline {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AskPipeline{
		cfg:      cfg.normalize(),
		rewriter: rewriter,
		text:     text,
		image:    image,
		reranker: reranker,
		chat:     chat,
		observer: observer,
		logger:   logger,
	}
}

var _ ports.AnswerStreamer = (*AskPipeline)(nil)

// Ask runs the pipeline in a goroutine and returns its event stream. The
// channel is closed when the run finishes or the context is cancelled;
// cancellation stops event emission and the generation consumer promptly.
func (p *AskPipeline) Ask(ctx context.Context, req domain.AskRequest) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		p.run(ctx, req, events)
	}()
	return events
}

// emitter serializes event sends and aborts them once the consumer is gone.
type emitter struct {
	ctx    context.Context
	events chan<- domain.StreamEvent
}

func (e *emitter) send(ev domain.StreamEvent) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *emitter) log(format string, args ...any) bool {
	return e.send(domain.LogEvent(fmt.Sprintf(format, args...)))
}

// branchResult is one corpus's evidence after fusion and rerank, plus the
// debug entries collected along the way.
type branchResult struct {
	results []domain.RankedResult
}

func (p *AskPipeline) stage(s domain.PipelineStage) {
	p.logger.Debug("pipeline_stage", "stage", string(s))
}

func (p *AskPipeline) run(ctx context.Context, req domain.AskRequest, events chan<- domain.StreamEvent) {
	started := time.Now()
	em := &emitter{ctx: ctx, events: events}
	persona := domain.ResolvePersona(req.Persona)

	p.stage(domain.StageReceived)
	p.logger.Info("pipeline_received", "question", req.Question, "persona", persona.ID)
	if !em.log("Analizando consulta: '%s'", req.Question) {
		return
	}

	p.stage(domain.StageRewriting)
	rewriteCtx, cancel := context.WithTimeout(ctx, p.cfg.RewriteTimeout)
	searchQuery := p.rewriter.Rewrite(rewriteCtx, req.Question, req.History)
	cancel()
	if searchQuery != req.Question {
		p.logger.Info("pipeline_rewrite", "original", req.Question, "rewritten", searchQuery)
		if !em.log("Reformulado: '%s'", searchQuery) {
			return
		}
	}

	debug := domain.DebugTrace{
		QueryRewritten: fmt.Sprintf("%s >> %s", req.Question, searchQuery),
		Step1TextVec:   []string{},
		Step1TextBM25:  []string{},
		Step2TextFinal: []string{},
		Step1ImgVec:    []string{},
		Step1ImgBM25:   []string{},
		Step2ImgFinal:  []string{},
	}
	var debugMu sync.Mutex

	// RETRIEVING, FUSING, RERANKING: the two corpora are independent and run
	// concurrently; fusion and rerank happen inside each branch. Log events
	// from the branches may interleave, which is fine for advisory output.
	var textBranch, imageBranch branchResult
	g := new(errgroup.Group)
	g.Go(func() error {
		textBranch = p.runTextBranch(ctx, em, req.Question, searchQuery, &debug, &debugMu)
		return nil
	})
	g.Go(func() error {
		imageBranch = p.runImageBranch(ctx, em, req.Question, searchQuery, &debug, &debugMu)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		p.observer.PipelineFinished("cancelled", time.Since(started))
		return
	}

	evidence := domain.EvidenceContext{
		Text:   textBranch.results,
		Images: imageBranch.results,
	}
	p.observer.EvidenceSelected("text", len(evidence.Text))
	p.observer.EvidenceSelected("image", len(evidence.Images))

	p.stage(domain.StageAssembling)
	contextBlock, ragas := FormatEvidence(evidence)
	metadata := buildMetadata(evidence, debug, ragas)
	if !em.send(domain.StreamEvent{Type: domain.EventMetadata, Metadata: metadata}) {
		p.observer.PipelineFinished("cancelled", time.Since(started))
		return
	}
	if !em.log("Generando respuesta con IA...") {
		return
	}

	messages := BuildGenerationMessages(persona, contextBlock, len(evidence.Images) > 0, req.History, req.Question)

	p.stage(domain.StageGenerating)
	outcome := p.generate(ctx, em, messages)
	switch outcome {
	case "ok":
		p.stage(domain.StageDone)
	case "rate_limited", "error":
		p.stage(domain.StageFailed)
	}
	p.observer.GenerationFinished(outcome)
	p.observer.PipelineFinished(outcome, time.Since(started))
	p.logger.Info("pipeline_done", "outcome", outcome, "elapsed", time.Since(started),
		"text_evidence", len(evidence.Text), "image_evidence", len(evidence.Images))
}

func (p *AskPipeline) runTextBranch(
	ctx context.Context,
	em *emitter,
	question, searchQuery string,
	debug *domain.DebugTrace,
	debugMu *sync.Mutex,
) branchResult {
	p.stage(domain.StageRetrievingText)
	em.log("Buscando en documentos PDF...")

	retrievalCtx, cancel := context.WithTimeout(ctx, p.cfg.RetrievalTimeout)
	outcome := p.text.Retrieve(retrievalCtx, searchQuery, p.cfg.RetrievalK)
	cancel()
	p.reportRetrievalErrors("text", outcome)

	debugMu.Lock()
	for _, d := range outcome.Dense {
		debug.Step1TextVec = append(debug.Step1TextVec, fmt.Sprintf("%s (%s)", d.Source, d.Subject))
	}
	for _, d := range outcome.Lexical {
		debug.Step1TextBM25 = append(debug.Step1TextBM25, fmt.Sprintf("%s (%s)", d.Source, d.Subject))
	}
	debugMu.Unlock()

	p.stage(domain.StageFusing)
	fused := trimCandidates(fuseRRF([][]domain.RetrievedDoc{outcome.Dense, outcome.Lexical}, p.cfg.RRFK), p.cfg.TextFusionLimit)
	if len(fused) == 0 {
		return branchResult{}
	}

	p.stage(domain.StageReranking)
	em.log("Reordenando %d fragmentos de texto...", len(fused))

	rerankCtx, cancel := context.WithTimeout(ctx, p.cfg.RerankTimeout)
	// The reranker judges against the user's literal question, not the
	// rewritten search query.
	results, err := p.reranker.RerankText(rerankCtx, question, fused, p.cfg.TextTopN)
	cancel()
	if err != nil {
		p.logger.Error("rerank_text_degraded", "error", err)
		p.observer.StageDegraded("rerank_text")
		return branchResult{}
	}

	debugMu.Lock()
	for _, r := range results {
		debug.Step2TextFinal = append(debug.Step2TextFinal, fmt.Sprintf("[%.2f] %s", r.Relevance, r.Doc.Source))
	}
	debugMu.Unlock()
	return branchResult{results: results}
}

func (p *AskPipeline) runImageBranch(
	ctx context.Context,
	em *emitter,
	question, searchQuery string,
	debug *domain.DebugTrace,
	debugMu *sync.Mutex,
) branchResult {
	p.stage(domain.StageRetrievingImg)
	em.log("Buscando en diapositivas e imagenes...")

	retrievalCtx, cancel := context.WithTimeout(ctx, p.cfg.RetrievalTimeout)
	outcome := p.image.Retrieve(retrievalCtx, searchQuery, p.cfg.RetrievalK)
	cancel()
	p.reportRetrievalErrors("image", outcome)

	debugMu.Lock()
	for _, d := range outcome.Dense {
		debug.Step1ImgVec = append(debug.Step1ImgVec, d.Source)
	}
	for _, d := range outcome.Lexical {
		debug.Step1ImgBM25 = append(debug.Step1ImgBM25, d.Source)
	}
	debugMu.Unlock()

	p.stage(domain.StageFusing)
	fused := trimCandidates(fuseRRF([][]domain.RetrievedDoc{outcome.Dense, outcome.Lexical}, p.cfg.RRFK), p.cfg.ImageFusionLimit)
	if len(fused) == 0 {
		return branchResult{}
	}

	p.stage(domain.StageReranking)
	em.log("Evaluando %d imagenes candidatas...", len(fused))

	rerankCtx, cancel := context.WithTimeout(ctx, p.cfg.RerankTimeout)
	results, err := p.reranker.RerankImages(rerankCtx, question, fused, p.cfg.ImageTopN, p.cfg.ConfidenceOffset, p.cfg.ConfidenceCutoff, p.observer)
	cancel()
	if err != nil {
		p.logger.Error("rerank_image_degraded", "error", err)
		p.observer.StageDegraded("rerank_image")
		em.log("Ninguna imagen tiene sentido semantico minimo.")
		return branchResult{}
	}

	debugMu.Lock()
	for _, r := range results {
		debug.Step2ImgFinal = append(debug.Step2ImgFinal, fmt.Sprintf("[%v%%] %s", r.Confidence, r.Doc.Source))
	}
	debugMu.Unlock()

	if len(results) > 0 {
		em.log("Recuperadas %d imagenes (filtrado en Front).", len(results))
	} else {
		em.log("Ninguna imagen tiene sentido semantico minimo.")
	}
	return branchResult{results: results}
}

func (p *AskPipeline) reportRetrievalErrors(corpus string, outcome RetrievalOutcome) {
	if outcome.DenseErr != nil {
		p.logger.Error("dense_retrieval_degraded", "corpus", corpus, "error", outcome.DenseErr)
		p.observer.StageDegraded("retrieve_dense_" + corpus)
	}
	if outcome.LexicalErr != nil {
		p.logger.Error("lexical_retrieval_degraded", "corpus", corpus, "error", outcome.LexicalErr)
		p.observer.StageDegraded("retrieve_lexical_" + corpus)
	}
}

// buildMetadata assembles the single metadata event. Citation sources are
// deduplicated preserving first appearance; image citations without a stored
// path are unrenderable and skipped.
func buildMetadata(evidence domain.EvidenceContext, debug domain.DebugTrace, ragas []string) *domain.Metadata {
	fuentes := []string{}
	seen := make(map[string]struct{})
	for _, r := range evidence.Text {
		if _, ok := seen[r.Doc.Source]; ok {
			continue
		}
		seen[r.Doc.Source] = struct{}{}
		fuentes = append(fuentes, r.Doc.Source)
	}

	imagenes := []domain.ImageCitation{}
	for _, r := range evidence.Images {
		if r.Doc.Path == "" {
			continue
		}
		imagenes = append(imagenes, domain.ImageCitation{
			Path:     r.Doc.Path,
			Filename: r.Doc.Source,
			Score:    r.Confidence,
		})
	}

	if ragas == nil {
		ragas = []string{}
	}
	return &domain.Metadata{
		FuentesTexto:  fuentes,
		Imagenes:      imagenes,
		DebugInfo:     debug,
		ContextoRagas: ragas,
	}
}

// generate streams the answer, forwarding each delta as a content event.
// Returns "ok", "rate_limited", "error" or "cancelled".
func (p *AskPipeline) generate(ctx context.Context, em *emitter, messages []domain.ChatMessage) string {
	chunks, err := p.chat.Stream(ctx, messages)
	if err != nil {
		return p.failGeneration(em, err)
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			return p.failGeneration(em, chunk.Err)
		}
		if chunk.Delta == "" {
			continue
		}
		if !em.send(domain.ContentEvent(chunk.Delta)) {
			return "cancelled"
		}
	}
	if ctx.Err() != nil {
		return "cancelled"
	}
	return "ok"
}

// failGeneration emits the single terminal error event. Rate limiting gets a
// friendlier message than a raw provider failure.
func (p *AskPipeline) failGeneration(em *emitter, err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		p.logger.Warn("generation_rate_limited", "error", err)
		em.send(domain.ErrorEvent(rateLimitMessage))
		return "rate_limited"
	}
	p.logger.Error("generation_failed", "error", err)
	em.send(domain.ErrorEvent(fmt.Sprintf("Error técnico: %v", err)))
	return "error"
}

// normalizeQuestion is the inbound validation shared by transport adapters.
func normalizeQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate question", errors.New("question is empty"))
	}
	return q, nil
}

// ValidateRequest trims and checks the inbound request, applying defaults.
func ValidateRequest(req domain.AskRequest) (domain.AskRequest, error) {
	q, err := normalizeQuestion(req.Question)
	if err != nil {
		return req, err
	}
	req.Question = q
	return req, nil
}
