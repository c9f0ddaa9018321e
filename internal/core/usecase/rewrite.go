package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/ports"
)

const (
	rewriteHistoryWindow = 4
	rewriteMinChars      = 2
	rewriteMaxTokens     = 60
	rewriteTemperature   = 0.1
)

const rewriteSystemPrompt = `Eres un especialista en Recuperación de Información.
Tu única función es reformular la consulta del usuario basándote en el HISTORIAL DE CHAT.
1. Resuelve referencias ("¿y sus ventajas?" -> "Ventajas de Kafka").
2. Si es saludo, déjalo igual.
3. Devuelve SOLO el texto reescrito.`

// QueryRewriter turns a possibly elliptical follow-up question into a
// self-contained search query by resolving references against recent history.
type QueryRewriter struct {
	completer ports.ChatCompleter
	logger    *slog.Logger
}

func NewQueryRewriter(completer ports.ChatCompleter, logger *slog.Logger) *QueryRewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRewriter{completer: completer, logger: logger}
}

// Rewrite issues a single chat-completion call, no retries. Any failure, and
// any output shorter than two characters, falls back to the original query:
// rewriting must never abort the pipeline.
func (r *QueryRewriter) Rewrite(ctx context.Context, original string, history []domain.ChatMessage) string {
	window := history
	if len(window) > rewriteHistoryWindow {
		window = window[len(window)-rewriteHistoryWindow:]
	}

	var chat strings.Builder
	for _, msg := range window {
		fmt.Fprintf(&chat, "%s: %s\n", msg.Role, msg.Content)
	}
	prompt := fmt.Sprintf("HISTORIAL:\n%s\nUSUARIO: %s\nQUERY:", chat.String(), original)

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: rewriteSystemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}

	rewritten, err := r.completer.Complete(ctx, messages, ports.CompletionOptions{
		Temperature: rewriteTemperature,
		MaxTokens:   rewriteMaxTokens,
	})
	if err != nil {
		r.logger.Warn("query_rewrite_degraded", "error", err)
		return original
	}

	rewritten = strings.TrimSpace(rewritten)
	if utf8.RuneCountInString(rewritten) < rewriteMinChars {
		return original
	}
	return rewritten
}
