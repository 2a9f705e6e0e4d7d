package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// listClient is the subset of *redis.Client the queue uses.
type listClient interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisQueue pops render jobs from a Redis list and pushes results onto
// another list.
type RedisQueue struct {
	rdb         listClient
	queueName   string
	resultList  string
	popTimeout  time.Duration
	retryDelay  time.Duration
	concurrency int
	logger      *slog.Logger
}

func NewRedisQueue(rdb *redis.Client, queueName, resultList string, concurrency int, logger *slog.Logger) *RedisQueue {
	return newQueue(rdb, queueName, resultList, concurrency, logger)
}

func newQueue(rdb listClient, queueName, resultList string, concurrency int, logger *slog.Logger) *RedisQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		rdb:         rdb,
		queueName:   queueName,
		resultList:  resultList,
		popTimeout:  5 * time.Second,
		retryDelay:  time.Second,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (q *RedisQueue) Name() string { return "redis" }

// Pop blocks until a payload is available or the pop timeout elapses, in
// which case it returns nil with no error.
func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Enqueue appends a JSON encoded job to the job list. Pop reads from the
// other end, so jobs are consumed in the order they were enqueued.
func (q *RedisQueue) Enqueue(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueName, b).Err()
}

// PushResult appends a JSON encoded result to the result list.
func (q *RedisQueue) PushResult(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.resultList, b).Err()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Run starts one polling loop per concurrency slot and blocks until ctx is
// done and every loop has returned.
func (q *RedisQueue) Run(ctx context.Context, handler func(ctx context.Context, data []byte)) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.poll(ctx, handler)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *RedisQueue) poll(ctx context.Context, handler func(ctx context.Context, data []byte)) {
	for {
		if ctx.Err() != nil {
			return
		}

		data, err := q.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("queue pop error, retrying", "queue", q.queueName, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.retryDelay):
			}
			continue
		}
		if data == nil {
			continue
		}

		handler(ctx, data)
	}
}
