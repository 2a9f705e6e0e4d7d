// pkg/schema/events.go
package schema

// Parameters is the job parameter payload consumed by the ADM engine worker.
type Parameters struct {
	ElementID       string   `json:"element_id"`
	GainMapping     []string `json:"gain_mapping"`
	DestinationPath string   `json:"destination_path"`
	SourcePath      string   `json:"source_path"`
}

// RenderJob is the message delivered on the job subject or queue.
type RenderJob struct {
	JobID      string     `json:"job_id"`
	Parameters Parameters `json:"parameters"`
}

type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

type ProcessingStage string

const (
	StageReceived   ProcessingStage = "received"
	StageValidation ProcessingStage = "validation"
	StageRendering  ProcessingStage = "rendering"
	StageCompleted  ProcessingStage = "completed"
	StageFailed     ProcessingStage = "failed"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// AudioInfo describes the first audio stream of a source file.
type AudioInfo struct {
	Codec      string  `json:"codec,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	Size       int64   `json:"size_bytes,omitempty"`
}

type WorkerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RenderLifecycleEvent struct {
	JobID           string          `json:"job_id"`
	ElementID       string          `json:"element_id,omitempty"`
	Stage           ProcessingStage `json:"stage"`
	ProcessingStart int64           `json:"processing_start,omitempty"`
	ProcessingEnd   int64           `json:"processing_end,omitempty"`
	Error           string          `json:"error,omitempty"`
	FailureType     FailureType     `json:"failure_type,omitempty"`
	HappenedAt      int64           `json:"happened_at"`
}

type RenderDone struct {
	ID               string                 `json:"id"`
	Status           JobStatus              `json:"status"`
	Message          string                 `json:"message,omitempty"`
	SourcePath       string                 `json:"source_path"`
	DestinationPath  string                 `json:"destination_path"`
	ElementID        string                 `json:"element_id,omitempty"`
	Source           *AudioInfo             `json:"source,omitempty"`
	FailureType      FailureType            `json:"failure_type,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	Lifecycle        []RenderLifecycleEvent `json:"lifecycle,omitempty"`
	Worker           *WorkerInfo            `json:"worker,omitempty"`
	HappenedAt       int64                  `json:"happened_at"`
}
