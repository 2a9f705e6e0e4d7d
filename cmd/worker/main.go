// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/adm-engine-worker/internal/bus"
	"github.com/tendant/adm-engine-worker/internal/engine"
	"github.com/tendant/adm-engine-worker/internal/httpapi"
	"github.com/tendant/adm-engine-worker/internal/ledger"
	"github.com/tendant/adm-engine-worker/internal/logging"
	"github.com/tendant/adm-engine-worker/internal/metrics"
	"github.com/tendant/adm-engine-worker/internal/probe"
	"github.com/tendant/adm-engine-worker/internal/process"
	"github.com/tendant/adm-engine-worker/internal/queue"
	"github.com/tendant/adm-engine-worker/internal/report"
	"github.com/tendant/adm-engine-worker/internal/worker"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		logging.New(logging.Config{}).Error("load config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "adm-engine-worker",
	})
	slog.SetDefault(logger)

	descriptor := process.DefaultDescriptor(version)
	logger.Info("worker starting",
		"name", descriptor.Name,
		"version", descriptor.Version,
		"transport", cfg.Transport,
		"gain_mapping_mode", cfg.GainMode,
		"concurrency", cfg.Concurrency,
		"engine_linked", engine.Available())
	if !engine.Available() {
		logger.Warn("built without the native engine; every job will fail", "build_tags", "cgo admengine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	reporters := report.NewMulti(logger)
	checks := map[string]httpapi.Check{}

	var source worker.Source
	switch cfg.Transport {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		q := queue.NewRedisQueue(rdb, cfg.RedisQueue, cfg.RedisResultList, cfg.Concurrency, logger)
		if err := q.Ping(ctx); err != nil {
			fatal(logger, "connect to Redis", err, "redis_addr", cfg.RedisAddr)
		}
		logger.Info("connected to Redis", "redis_addr", cfg.RedisAddr, "queue", cfg.RedisQueue, "result_list", cfg.RedisResultList)
		reporters.Add(report.NewRedisReporter(q))
		checks["redis"] = q.Ping
		source = q
	default:
		nc, err := bus.Connect(cfg.NATSURL, descriptor.Name, nats.DrainTimeout(cfg.ShutdownTimeout))
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue, "result_subject", cfg.ResultSubject)
		reporters.Add(report.NewNATSReporter(nc, cfg.ResultSubject))
		checks["nats"] = nc.Ping
		source = bus.NewSubscriber(nc, cfg.JobSubject, cfg.WorkerQueue, cfg.Concurrency).
			WithDrainTimeout(cfg.ShutdownTimeout)
	}

	var tracker worker.Tracker
	var jobs httpapi.JobLookup
	if cfg.DatabaseURL != "" {
		l, pool, err := ledger.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "open job ledger", err)
		}
		defer pool.Close()
		logger.Info("job ledger ready")
		reporters.Add(l)
		checks["postgres"] = pool.Ping
		tracker = l
		jobs = l
	}

	var prober probe.Prober
	if cfg.ProbeSource {
		ff := probe.NewFFprobe()
		if ff.Available() {
			prober = ff
			logger.Info("source probing enabled")
		} else {
			logger.Warn("PROBE_SOURCE set but ffprobe not found in PATH")
		}
	}

	adapter := process.NewAdapter(engine.NewNative(),
		process.WithGainMappingMode(cfg.GainMode),
		process.WithLogger(logger))

	runner := worker.NewRunner(worker.Deps{
		Adapter:    adapter,
		Reporter:   reporters,
		Prober:     prober,
		Tracker:    tracker,
		Metrics:    m,
		Descriptor: descriptor,
		Logger:     logger,
	})

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpapi.NewRouter(httpapi.Deps{
				Descriptor: descriptor,
				Checks:     checks,
				Metrics:    m.Handler(),
				Jobs:       jobs,
				Logger:     logger,
			}),
		}
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "err", err)
				stop()
			}
		}()
	}

	if err := runner.Run(ctx, source); err != nil {
		logger.Error("worker stopped", "err", err)
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "err", err)
		}
	}
	logger.Info("worker stopped")
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
