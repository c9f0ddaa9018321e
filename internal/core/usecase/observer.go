package usecase

import "time"

// PipelineObserver receives pipeline telemetry without coupling the core to a
// metrics backend. The Prometheus implementation lives in observability.
type PipelineObserver interface {
	StageDegraded(stage string)
	ImageConfidence(confidence float64)
	EvidenceSelected(corpus string, count int)
	GenerationFinished(outcome string)
	PipelineFinished(outcome string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) StageDegraded(string)                   {}
func (noopObserver) ImageConfidence(float64)                {}
func (noopObserver) EvidenceSelected(string, int)           {}
func (noopObserver) GenerationFinished(string)              {}
func (noopObserver) PipelineFinished(string, time.Duration) {}
