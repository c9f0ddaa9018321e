package domain

// PipelineStage identifies where a request currently is inside the
// orchestrator state machine. Stages before StageGenerating degrade on
// failure; only StageGenerating can transition to StageFailed.
type PipelineStage string

const (
	StageReceived       PipelineStage = "received"
	StageRewriting      PipelineStage = "rewriting"
	StageRetrievingText PipelineStage = "retrieving_text"
	StageRetrievingImg  PipelineStage = "retrieving_image"
	StageFusing         PipelineStage = "fusing"
	StageReranking      PipelineStage = "reranking"
	StageAssembling     PipelineStage = "assembling"
	StageGenerating     PipelineStage = "generating"
	StageDone           PipelineStage = "done"
	StageFailed         PipelineStage = "failed"
)
