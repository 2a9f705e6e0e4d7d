package report

import (
	"context"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// ResultPusher is satisfied by *queue.RedisQueue.
type ResultPusher interface {
	PushResult(ctx context.Context, v any) error
}

type RedisReporter struct {
	pusher ResultPusher
}

func NewRedisReporter(pusher ResultPusher) *RedisReporter {
	return &RedisReporter{pusher: pusher}
}

func (r *RedisReporter) Name() string { return "redis" }

func (r *RedisReporter) Report(ctx context.Context, done schema.RenderDone) error {
	return r.pusher.PushResult(ctx, done)
}
