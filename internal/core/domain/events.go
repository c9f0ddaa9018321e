package domain

type EventType string

const (
	EventLog      EventType = "log"
	EventMetadata EventType = "metadata"
	EventContent  EventType = "content"
	EventError    EventType = "error"
)

// DebugTrace mirrors the per-stage candidate lists exposed to the frontend
// debug panel.
type DebugTrace struct {
	QueryRewritten string   `json:"query_rewritten"`
	Step1TextVec   []string `json:"step1_text_vec"`
	Step1TextBM25  []string `json:"step1_text_bm25"`
	Step2TextFinal []string `json:"step2_text_final"`
	Step1ImgVec    []string `json:"step1_img_vec"`
	Step1ImgBM25   []string `json:"step1_img_bm25"`
	Step2ImgFinal  []string `json:"step2_img_final"`
}

// Metadata is emitted exactly once per request, always before any content
// event.
type Metadata struct {
	FuentesTexto  []string        `json:"fuentes_texto"`
	Imagenes      []ImageCitation `json:"imagenes"`
	DebugInfo     DebugTrace      `json:"debug_info"`
	ContextoRagas []string        `json:"contexto_ragas"`
}

// StreamEvent is the only externally observable output of one pipeline run.
type StreamEvent struct {
	Type     EventType
	Message  string
	Delta    string
	Metadata *Metadata
}

func LogEvent(message string) StreamEvent {
	return StreamEvent{Type: EventLog, Message: message}
}

func ContentEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventContent, Delta: delta}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// GenerationChunk normalizes provider-specific streaming shapes into one
// internal channel type consumed by the orchestrator.
type GenerationChunk struct {
	Delta string
	Err   error
}
