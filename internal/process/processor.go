package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/adm-engine-worker/internal/engine"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// Adapter turns job parameters into one engine render and the engine answer
// into a job result.
type Adapter struct {
	engine   engine.Engine
	gainMode GainMappingMode
	logger   *slog.Logger
}

type Option func(*Adapter)

func WithGainMappingMode(mode GainMappingMode) Option {
	return func(a *Adapter) { a.gainMode = mode }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func NewAdapter(e engine.Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:   e,
		gainMode: GainMappingFirst,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) GainMappingMode() GainMappingMode { return a.gainMode }

// Process runs a single job. It always returns a terminal result; every
// failure is carried in the result rather than returned.
func (a *Adapter) Process(ctx context.Context, jobID string, params schema.Parameters) *Result {
	result := NewResult(jobID)
	logger := a.logger.With("job_id", jobID)
	logger.Info("start ADM engine job", "source", params.SourcePath, "destination", params.DestinationPath, "element_id", params.ElementID)

	gains, dropped, err := SelectGainMapping(params.GainMapping, a.gainMode)
	if err != nil {
		logger.Warn("rejected gain mapping", "err", err)
		MarkError(result, err)
		return result
	}
	if dropped > 0 {
		logger.Warn("gain mapping entries ignored", "mode", a.gainMode, "forwarded", 1, "dropped", dropped)
	}

	req := engine.Request{
		SourcePath:      params.SourcePath,
		DestinationPath: params.DestinationPath,
		GainMapping:     gains,
		ElementID:       params.ElementID,
	}
	if err := req.Validate(); err != nil {
		logger.Warn("rejected job parameters", "err", err)
		MarkError(result, err)
		return result
	}

	if err := ctx.Err(); err != nil {
		MarkError(result, fmt.Errorf("job canceled before render: %w", err))
		return result
	}

	MarkRunning(result)
	outcome, err := a.engine.Render(req)
	if err != nil {
		logger.Error("render call failed", "err", err)
		MarkError(result, fmt.Errorf("render: %w", err))
		return result
	}

	if outcome.Succeeded() {
		MarkCompleted(result)
		logger.Info("ADM engine job completed")
		return result
	}

	message, err := outcome.Text()
	if err != nil {
		logger.Error("engine failed with undecodable message", "code", outcome.Code, "message_bytes", len(outcome.Message))
		MarkError(result, err)
		return result
	}

	failure := &engine.Failure{Code: outcome.Code, Message: message}
	logger.Error("engine failed", "code", outcome.Code, "message", failure.Error())
	MarkError(result, failure)
	return result
}
