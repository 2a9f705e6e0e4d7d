// internal/process/adapter.go
package process

import (
	"errors"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// Status represents the lifecycle state of a render job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Result is what the worker reports back for one job.
type Result struct {
	JobID       string
	Status      Status
	Message     string
	FailureType schema.FailureType
	// Err keeps the typed cause for callers that inspect it with errors.As.
	Err error
}

func NewResult(jobID string) *Result {
	return &Result{
		JobID:  jobID,
		Status: StatusPending,
	}
}

func MarkRunning(r *Result) { r.Status = StatusRunning }

func MarkCompleted(r *Result) {
	r.Status = StatusCompleted
	r.Message = ""
	r.FailureType = ""
	r.Err = nil
}

func MarkError(r *Result, err error) {
	r.Status = StatusError
	if err != nil {
		r.Message = err.Error()
		r.Err = err
		r.FailureType = Classify(err)
	}
}

// Done reports whether the result reached a terminal status.
func (r *Result) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// SchemaStatus maps a terminal status onto the published schema.
func (r *Result) SchemaStatus() schema.JobStatus {
	if r.Status == StatusCompleted {
		return schema.JobStatusCompleted
	}
	return schema.JobStatusError
}

// As is errors.As applied to the result cause.
func (r *Result) As(target any) bool {
	return r.Err != nil && errors.As(r.Err, target)
}
