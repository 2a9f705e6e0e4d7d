package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/adm-engine-worker/internal/process"
)

type config struct {
	NATSURL         string
	JobSubject      string
	WorkerQueue     string
	ResultSubject   string
	Transport       string
	RedisAddr       string
	RedisQueue      string
	RedisResultList string
	DatabaseURL     string
	HTTPAddr        string
	GainMode        process.GainMappingMode
	Concurrency     int
	ProbeSource     bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func LoadConfig() (config, error) {
	cfg := config{
		NATSURL:         getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:      getenv("JOB_SUBJECT", "adm.render.jobs"),
		WorkerQueue:     getenv("WORKER_QUEUE", "adm-engine-workers"),
		ResultSubject:   getenv("RESULT_SUBJECT", "adm.render.done"),
		Transport:       strings.ToLower(getenv("JOB_TRANSPORT", "nats")),
		RedisAddr:       getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisQueue:      getenv("REDIS_QUEUE", "adm:render:jobs"),
		RedisResultList: getenv("REDIS_RESULT_LIST", "adm:render:results"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        getenvAllowEmpty("HTTP_ADDR", ":8080"),
		ProbeSource:     getenvBool("PROBE_SOURCE", false),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "text"),
	}

	switch cfg.Transport {
	case "nats", "redis":
	default:
		return config{}, fmt.Errorf("invalid JOB_TRANSPORT %q: expected nats or redis", cfg.Transport)
	}

	mode, err := process.ParseGainMappingMode(getenv("GAIN_MAPPING_MODE", string(process.GainMappingFirst)))
	if err != nil {
		return config{}, fmt.Errorf("invalid GAIN_MAPPING_MODE: %w", err)
	}
	cfg.GainMode = mode

	concurrency, err := parsePositiveInt(getenv("WORKER_CONCURRENCY", "1"), "WORKER_CONCURRENCY")
	if err != nil {
		return config{}, err
	}
	cfg.Concurrency = concurrency

	timeout, err := parsePositiveInt(getenv("SHUTDOWN_TIMEOUT", "30"), "SHUTDOWN_TIMEOUT")
	if err != nil {
		return config{}, err
	}
	cfg.ShutdownTimeout = time.Duration(timeout) * time.Second

	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// getenvAllowEmpty distinguishes an unset variable from one set to "".
func getenvAllowEmpty(k, d string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}
