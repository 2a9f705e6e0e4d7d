// cmd/render-once renders a single job locally against the linked ADM engine,
// without NATS, Redis or Postgres.
//
// Usage:
//
//	./render-once -source in.wav -destination out.wav -element APR_1001 -gain "AO_1001=-3.0"
//	./render-once -source in.wav -destination out.wav -gain "AO_1001=-3" -gain "AO_1002=1.5" -gain-mode all
//	./render-once -source in.wav -probe  # Show source metadata only
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/adm-engine-worker/internal/engine"
	"github.com/tendant/adm-engine-worker/internal/logging"
	"github.com/tendant/adm-engine-worker/internal/probe"
	"github.com/tendant/adm-engine-worker/internal/process"
	"github.com/tendant/adm-engine-worker/internal/worker"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// gainFlags collects repeated -gain values in order.
type gainFlags []string

func (g *gainFlags) String() string { return strings.Join(*g, ",") }

func (g *gainFlags) Set(v string) error {
	*g = append(*g, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("render-once", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var gains gainFlags
	source := fs.String("source", "", "Source BW64/ADM file path (required)")
	destination := fs.String("destination", "", "Destination file path (required unless -probe)")
	element := fs.String("element", "", "Audio programme element ID to render")
	fs.Var(&gains, "gain", "Gain mapping entry, repeatable (e.g. AO_1001=-3.0)")
	gainMode := fs.String("gain-mode", string(process.GainMappingFirst), "Gain mapping mode: first or all")
	jobID := fs.String("job-id", "", "Job ID to report (default: random UUID)")
	probeOnly := fs.Bool("probe", false, "Show source metadata only (don't render)")
	timeout := fs.Int("timeout", 0, "Render timeout in seconds (0 = none)")
	verbose := fs.Bool("v", false, "Verbose logging to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *source == "" {
		fmt.Fprintln(stderr, "Error: -source flag is required")
		fs.Usage()
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{Level: level, Format: "tint", Output: stderr})

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*timeout)*time.Second)
		defer cancel()
	}

	if *probeOnly {
		info, err := probe.NewFFprobe().Probe(ctx, *source)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to probe source: %v\n", err)
			return 1
		}
		return writeJSON(stdout, stderr, info)
	}

	if *destination == "" {
		fmt.Fprintln(stderr, "Error: -destination flag is required")
		fs.Usage()
		return 2
	}

	mode, err := process.ParseGainMappingMode(*gainMode)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !engine.Available() {
		logger.Warn("built without the native engine; rebuild with -tags admengine")
	}

	if *jobID == "" {
		*jobID = uuid.NewString()
	}
	job, err := json.Marshal(schema.RenderJob{
		JobID: *jobID,
		Parameters: schema.Parameters{
			ElementID:       *element,
			GainMapping:     gains,
			DestinationPath: *destination,
			SourcePath:      *source,
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to encode job: %v\n", err)
		return 1
	}

	runner := worker.NewRunner(worker.Deps{
		Adapter: process.NewAdapter(engine.NewNative(),
			process.WithGainMappingMode(mode),
			process.WithLogger(logger)),
		Descriptor: process.DefaultDescriptor("local"),
		Logger:     logger,
	})

	done := runner.Handle(ctx, job)
	if code := writeJSON(stdout, stderr, done); code != 0 {
		return code
	}
	if done.Status != schema.JobStatusCompleted {
		return 1
	}
	return 0
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}
