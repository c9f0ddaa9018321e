package http

import "github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"

// Wire shapes for the NDJSON stream. Metadata fields are flattened into the
// event object alongside the type tag.

type askRequest struct {
	Question string               `json:"question"`
	History  []domain.ChatMessage `json:"history"`
	Persona  string               `json:"persona"`
}

type logEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type metadataEvent struct {
	Type string `json:"type"`
	domain.Metadata
}

type contentEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func wireEvent(ev domain.StreamEvent) any {
	switch ev.Type {
	case domain.EventLog:
		return logEvent{Type: string(domain.EventLog), Message: ev.Message}
	case domain.EventMetadata:
		var meta domain.Metadata
		if ev.Metadata != nil {
			meta = *ev.Metadata
		}
		return metadataEvent{Type: string(domain.EventMetadata), Metadata: meta}
	case domain.EventContent:
		return contentEvent{Type: string(domain.EventContent), Delta: ev.Delta}
	case domain.EventError:
		return errorEvent{Type: string(domain.EventError), Message: ev.Message}
	default:
		return nil
	}
}
