// Package worker runs render jobs delivered by a job source.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/adm-engine-worker/internal/metrics"
	"github.com/tendant/adm-engine-worker/internal/probe"
	"github.com/tendant/adm-engine-worker/internal/process"
	"github.com/tendant/adm-engine-worker/internal/report"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// Source delivers raw job messages to a handler until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, handler func(ctx context.Context, data []byte)) error
}

// Tracker is told when a job starts rendering.
type Tracker interface {
	MarkRunning(ctx context.Context, jobID string, params schema.Parameters) error
}

type Deps struct {
	Adapter    *process.Adapter
	Reporter   report.Reporter
	Prober     probe.Prober
	Tracker    Tracker
	Metrics    *metrics.Metrics
	Descriptor process.Descriptor
	Logger     *slog.Logger
}

type Runner struct {
	adapter    *process.Adapter
	reporter   report.Reporter
	prober     probe.Prober
	tracker    Tracker
	metrics    *metrics.Metrics
	descriptor process.Descriptor
	logger     *slog.Logger
}

func NewRunner(d Deps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		adapter:    d.Adapter,
		reporter:   d.Reporter,
		prober:     d.Prober,
		tracker:    d.Tracker,
		metrics:    d.Metrics,
		descriptor: d.Descriptor,
		logger:     logger,
	}
}

// Run consumes src until ctx is canceled.
func (r *Runner) Run(ctx context.Context, src Source) error {
	r.logger.Info("listening for jobs", "source", src.Name())
	err := src.Run(ctx, func(jobCtx context.Context, data []byte) {
		r.Handle(jobCtx, data)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one raw job message and reports exactly one result.
func (r *Runner) Handle(ctx context.Context, data []byte) schema.RenderDone {
	if r.metrics != nil {
		defer r.metrics.JobStarted()()
	}

	var job schema.RenderJob
	decodeErr := json.Unmarshal(data, &job)
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	logger := r.logger.With("job_id", job.JobID)
	state := NewProcessingState(job.JobID, job.Parameters.ElementID)
	r.publishLifecycle(ctx, state.AddLifecycleEvent(schema.StageReceived, nil, ""))

	if decodeErr != nil {
		res := process.NewResult(job.JobID)
		process.MarkError(res, &process.DecodeError{Err: decodeErr})
		logger.Warn("invalid job payload", "err", decodeErr, "bytes", len(data))
		return r.finish(ctx, state, job.Parameters, nil, res)
	}
	logger.Info("received job", "source", job.Parameters.SourcePath, "destination", job.Parameters.DestinationPath, "element_id", job.Parameters.ElementID, "gain_entries", len(job.Parameters.GainMapping))

	if r.tracker != nil {
		if err := r.tracker.MarkRunning(ctx, job.JobID, job.Parameters); err != nil {
			logger.Warn("mark job running failed", "err", err)
		}
	}

	var source *schema.AudioInfo
	if r.prober != nil {
		info, err := r.prober.Probe(ctx, job.Parameters.SourcePath)
		if err != nil {
			logger.Warn("probe source failed", "err", err)
		} else {
			source = info
			logger.Info("probed source", "codec", info.Codec, "sample_rate", info.SampleRate, "channels", info.Channels, "duration_s", info.Duration)
		}
	}

	r.publishLifecycle(ctx, state.AddLifecycleEvent(schema.StageRendering, nil, ""))
	renderStart := time.Now()
	res := r.adapter.Process(ctx, job.JobID, job.Parameters)
	if r.metrics != nil {
		r.metrics.RenderFinished(time.Since(renderStart))
	}
	return r.finish(ctx, state, job.Parameters, source, res)
}

func (r *Runner) finish(ctx context.Context, state *ProcessingState, params schema.Parameters, source *schema.AudioInfo, res *process.Result) schema.RenderDone {
	if res.Status == process.StatusCompleted {
		r.publishLifecycle(ctx, state.AddLifecycleEvent(schema.StageCompleted, nil, ""))
	} else {
		stage := schema.StageFailed
		if res.FailureType == schema.FailureTypeValidation {
			stage = schema.StageValidation
		}
		r.publishLifecycle(ctx, state.AddLifecycleEvent(stage, res.Err, res.FailureType))
	}

	elapsed := state.Duration()
	done := schema.RenderDone{
		ID:               res.JobID,
		Status:           res.SchemaStatus(),
		Message:          res.Message,
		SourcePath:       params.SourcePath,
		DestinationPath:  params.DestinationPath,
		ElementID:        params.ElementID,
		Source:           source,
		FailureType:      res.FailureType,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Lifecycle:        state.Lifecycle,
		Worker:           r.descriptor.Info(),
		HappenedAt:       time.Now().Unix(),
	}

	if r.reporter != nil {
		// Reporting must not be cut short by a shutdown that began mid-job.
		if err := r.reporter.Report(context.WithoutCancel(ctx), done); err != nil {
			r.logger.Error("publish result failed", "job_id", done.ID, "err", err)
		}
	}
	if r.metrics != nil {
		r.metrics.JobFinished(string(done.Status), string(done.FailureType), elapsed)
	}

	if done.Status == schema.JobStatusCompleted {
		r.logger.Info("completed job", "job_id", done.ID, "processing_time_ms", done.ProcessingTimeMs)
	} else {
		r.logger.Error("job failed", "job_id", done.ID, "message", done.Message, "failure_type", done.FailureType, "processing_time_ms", done.ProcessingTimeMs)
	}
	return done
}

func (r *Runner) publishLifecycle(ctx context.Context, event schema.RenderLifecycleEvent) {
	lr, ok := r.reporter.(report.LifecycleReporter)
	if !ok {
		return
	}
	if err := lr.Lifecycle(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Error("publish lifecycle event failed", "job_id", event.JobID, "stage", event.Stage, "err", err)
	}
}
