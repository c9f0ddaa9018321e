package ports

import (
	"context"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

// AnswerStreamer runs the full pipeline for one request. The returned channel
// carries the ordered event stream and is closed when the run terminates;
// cancelling the context stops the run and releases its resources.
type AnswerStreamer interface {
	Ask(ctx context.Context, req domain.AskRequest) <-chan domain.StreamEvent
}
