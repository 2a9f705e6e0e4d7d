package worker

import (
	"time"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// ProcessingState accumulates the lifecycle of one job.
type ProcessingState struct {
	JobID     string
	ElementID string
	StartTime time.Time
	Lifecycle []schema.RenderLifecycleEvent
}

func NewProcessingState(jobID, elementID string) *ProcessingState {
	return &ProcessingState{
		JobID:     jobID,
		ElementID: elementID,
		StartTime: time.Now(),
		Lifecycle: make([]schema.RenderLifecycleEvent, 0, 4),
	}
}

func (ps *ProcessingState) AddLifecycleEvent(stage schema.ProcessingStage, err error, failureType schema.FailureType) schema.RenderLifecycleEvent {
	event := schema.RenderLifecycleEvent{
		JobID:      ps.JobID,
		ElementID:  ps.ElementID,
		Stage:      stage,
		HappenedAt: time.Now().Unix(),
	}

	switch stage {
	case schema.StageRendering:
		event.ProcessingStart = ps.StartTime.UnixMilli()
	case schema.StageCompleted, schema.StageFailed:
		event.ProcessingStart = ps.StartTime.UnixMilli()
		event.ProcessingEnd = time.Now().UnixMilli()
	}

	if err != nil {
		event.Error = err.Error()
		event.FailureType = failureType
	}

	ps.Lifecycle = append(ps.Lifecycle, event)
	return event
}

func (ps *ProcessingState) Duration() time.Duration {
	if ps.StartTime.IsZero() {
		return 0
	}
	return time.Since(ps.StartTime)
}
