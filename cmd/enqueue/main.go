// cmd/enqueue publishes render jobs onto the worker's job transport.
//
// Jobs come either from flags (one job) or from a file of newline-delimited
// schema.RenderJob JSON objects. Like most bulk tools here it defaults to a
// dry run; pass -execute to publish.
//
// Usage:
//
//	./enqueue -source in.wav -destination out.wav -gain "AO_1001=-3" -execute
//	./enqueue -file jobs.jsonl -transport redis -limit 10 -execute
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/adm-engine-worker/internal/bus"
	"github.com/tendant/adm-engine-worker/internal/logging"
	"github.com/tendant/adm-engine-worker/internal/queue"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

type config struct {
	Transport   string
	NATSURL     string
	JobSubject  string
	RedisAddr   string
	RedisQueue  string
	File        string
	Limit       int
	DryRun      bool
	SourcePath  string
	Destination string
	ElementID   string
	Gains       []string
}

type gainFlags []string

func (g *gainFlags) String() string { return strings.Join(*g, ",") }

func (g *gainFlags) Set(v string) error {
	*g = append(*g, v)
	return nil
}

// publisher is satisfied by the NATS and Redis adapters below.
type publisher interface {
	Publish(ctx context.Context, job schema.RenderJob) error
}

type natsPublisher struct {
	client  *bus.Client
	subject string
}

func (p natsPublisher) Publish(_ context.Context, job schema.RenderJob) error {
	return p.client.PublishJSON(p.subject, job)
}

type redisPublisher struct{ q *queue.RedisQueue }

func (p redisPublisher) Publish(ctx context.Context, job schema.RenderJob) error {
	return p.q.Enqueue(ctx, job)
}

func main() {
	_ = godotenv.Load()

	logger := logging.New(logging.Config{
		Level:  getenv("LOG_LEVEL", "info"),
		Format: getenv("LOG_FORMAT", "text"),
	})
	slog.SetDefault(logger)

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fatal(logger, "parse flags", err)
	}

	jobs, err := collectJobs(cfg)
	if err != nil {
		fatal(logger, "collect jobs", err)
	}
	logger.Info("enqueue starting", "transport", cfg.Transport, "jobs", len(jobs), "dry_run", cfg.DryRun)

	ctx := context.Background()

	var pub publisher
	// closeTransport flushes buffered publishes; it must run before exit.
	closeTransport := func() {}
	if !cfg.DryRun {
		switch cfg.Transport {
		case "redis":
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			closeTransport = func() { _ = rdb.Close() }
			q := queue.NewRedisQueue(rdb, cfg.RedisQueue, "", 1, logger)
			if err := q.Ping(ctx); err != nil {
				fatal(logger, "connect to Redis", err, "redis_addr", cfg.RedisAddr)
			}
			pub = redisPublisher{q: q}
		default:
			nc, err := bus.Connect(cfg.NATSURL, "adm-engine-enqueue")
			if err != nil {
				fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
			}
			closeTransport = nc.Close
			pub = natsPublisher{client: nc, subject: cfg.JobSubject}
		}
	}

	published, failed := publishAll(ctx, pub, jobs, logger)
	closeTransport()
	logger.Info("enqueue complete", "total", len(jobs), "published", published, "failed", failed, "dry_run", cfg.DryRun)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(args []string) (config, error) {
	cfg := config{
		Transport:  strings.ToLower(getenv("JOB_TRANSPORT", "nats")),
		NATSURL:    getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject: getenv("JOB_SUBJECT", "adm.render.jobs"),
		RedisAddr:  getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisQueue: getenv("REDIS_QUEUE", "adm:render:jobs"),
		DryRun:     true,
	}

	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	var gains gainFlags
	var execute bool
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Job transport: nats or redis")
	fs.StringVar(&cfg.File, "file", "", "File of newline-delimited RenderJob JSON objects")
	fs.IntVar(&cfg.Limit, "limit", 0, "Maximum number of jobs to publish (0 = unlimited)")
	fs.StringVar(&cfg.SourcePath, "source", "", "Source path for a single job")
	fs.StringVar(&cfg.Destination, "destination", "", "Destination path for a single job")
	fs.StringVar(&cfg.ElementID, "element", "", "Element ID for a single job")
	fs.Var(&gains, "gain", "Gain mapping entry for a single job, repeatable")
	fs.BoolVar(&execute, "execute", false, "Actually publish jobs (disables dry-run)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if execute {
		cfg.DryRun = false
	}
	cfg.Gains = gains

	switch cfg.Transport {
	case "nats", "redis":
	default:
		return config{}, fmt.Errorf("invalid transport %q: expected nats or redis", cfg.Transport)
	}
	if cfg.File == "" && cfg.SourcePath == "" {
		return config{}, fmt.Errorf("either -file or -source is required")
	}
	if cfg.Limit < 0 {
		return config{}, fmt.Errorf("-limit must not be negative (got %d)", cfg.Limit)
	}
	return cfg, nil
}

func collectJobs(cfg config) ([]schema.RenderJob, error) {
	var jobs []schema.RenderJob
	if cfg.SourcePath != "" {
		jobs = append(jobs, schema.RenderJob{
			JobID: uuid.NewString(),
			Parameters: schema.Parameters{
				ElementID:       cfg.ElementID,
				GainMapping:     cfg.Gains,
				DestinationPath: cfg.Destination,
				SourcePath:      cfg.SourcePath,
			},
		})
	}

	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		fromFile, err := readJobs(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.File, err)
		}
		jobs = append(jobs, fromFile...)
	}

	if cfg.Limit > 0 && len(jobs) > cfg.Limit {
		jobs = jobs[:cfg.Limit]
	}
	return jobs, nil
}

// readJobs parses newline-delimited jobs, skipping blank lines. Jobs
// without an ID get a fresh UUID.
func readJobs(r io.Reader) ([]schema.RenderJob, error) {
	var jobs []schema.RenderJob
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var job schema.RenderJob
		if err := json.Unmarshal([]byte(text), &job); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if job.JobID == "" {
			job.JobID = uuid.NewString()
		}
		jobs = append(jobs, job)
	}
	return jobs, scanner.Err()
}

// publishAll publishes each job in order. A nil publisher logs the jobs
// without sending them.
func publishAll(ctx context.Context, pub publisher, jobs []schema.RenderJob, logger *slog.Logger) (published, failed int) {
	for _, job := range jobs {
		if pub == nil {
			logger.Info("would publish job", "job_id", job.JobID, "source", job.Parameters.SourcePath, "destination", job.Parameters.DestinationPath)
			continue
		}
		if err := pub.Publish(ctx, job); err != nil {
			logger.Error("publish job failed", "job_id", job.JobID, "err", err)
			failed++
			continue
		}
		published++
		logger.Debug("published job", "job_id", job.JobID)
	}
	return published, failed
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
