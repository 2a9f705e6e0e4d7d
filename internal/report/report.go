// Package report delivers job results to the orchestration side.
package report

import (
	"context"
	"log/slog"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// Reporter receives the final result of every job.
type Reporter interface {
	Report(ctx context.Context, done schema.RenderDone) error
}

// LifecycleReporter optionally receives intermediate stage events.
type LifecycleReporter interface {
	Lifecycle(ctx context.Context, event schema.RenderLifecycleEvent) error
}

// Multi fans out to several reporters. A failing reporter is logged and does
// not prevent the others from running.
type Multi struct {
	reporters []Reporter
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, reporters ...Reporter) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{reporters: reporters, logger: logger}
}

func (m *Multi) Add(r Reporter) { m.reporters = append(m.reporters, r) }

func (m *Multi) Len() int { return len(m.reporters) }

func (m *Multi) Report(ctx context.Context, done schema.RenderDone) error {
	var first error
	for _, r := range m.reporters {
		if err := r.Report(ctx, done); err != nil {
			m.logger.Error("report result failed", "id", done.ID, "reporter", reporterName(r), "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *Multi) Lifecycle(ctx context.Context, event schema.RenderLifecycleEvent) error {
	var first error
	for _, r := range m.reporters {
		lr, ok := r.(LifecycleReporter)
		if !ok {
			continue
		}
		if err := lr.Lifecycle(ctx, event); err != nil {
			m.logger.Error("publish lifecycle event failed", "job_id", event.JobID, "stage", event.Stage, "reporter", reporterName(r), "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

type named interface{ Name() string }

func reporterName(r Reporter) string {
	if n, ok := r.(named); ok {
		return n.Name()
	}
	return "unknown"
}
