package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/adm-engine-worker/internal/engine"
	"github.com/tendant/adm-engine-worker/internal/metrics"
	"github.com/tendant/adm-engine-worker/internal/process"
	"github.com/tendant/adm-engine-worker/pkg/schema"
)

type fakeEngine struct {
	mu      sync.Mutex
	outcome engine.Outcome
	err     error
	calls   []engine.Request
}

func (f *fakeEngine) Render(req engine.Request) (engine.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.outcome, f.err
}

type captureReporter struct {
	mu        sync.Mutex
	results   []schema.RenderDone
	lifecycle []schema.RenderLifecycleEvent
	err       error
}

func (c *captureReporter) Report(_ context.Context, done schema.RenderDone) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, done)
	return c.err
}

func (c *captureReporter) Lifecycle(_ context.Context, event schema.RenderLifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle = append(c.lifecycle, event)
	return nil
}

func (c *captureReporter) stages() []schema.ProcessingStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.ProcessingStage, 0, len(c.lifecycle))
	for _, e := range c.lifecycle {
		out = append(out, e.Stage)
	}
	return out
}

type fakeTracker struct {
	jobs []string
	err  error
}

func (f *fakeTracker) MarkRunning(_ context.Context, jobID string, _ schema.Parameters) error {
	f.jobs = append(f.jobs, jobID)
	return f.err
}

type fakeProber struct {
	info *schema.AudioInfo
	err  error
}

func (f *fakeProber) Probe(_ context.Context, _ string) (*schema.AudioInfo, error) {
	return f.info, f.err
}

type sliceSource struct {
	messages [][]byte
}

func (s *sliceSource) Name() string { return "slice" }

func (s *sliceSource) Run(ctx context.Context, handler func(ctx context.Context, data []byte)) error {
	for _, m := range s.messages {
		handler(ctx, m)
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func jobPayload(t *testing.T, job schema.RenderJob) []byte {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func newTestRunner(e engine.Engine, rep *captureReporter, extra func(*Deps)) *Runner {
	d := Deps{
		Adapter:    process.NewAdapter(e, process.WithLogger(quietLogger())),
		Reporter:   rep,
		Descriptor: process.DefaultDescriptor("test"),
		Logger:     quietLogger(),
	}
	if extra != nil {
		extra(&d)
	}
	return NewRunner(d)
}

func TestHandleCompletedJob(t *testing.T) {
	fake := &fakeEngine{}
	rep := &captureReporter{}
	tracker := &fakeTracker{}
	r := newTestRunner(fake, rep, func(d *Deps) {
		d.Tracker = tracker
		d.Prober = &fakeProber{info: &schema.AudioInfo{Codec: "pcm_s24le", SampleRate: 48000, Channels: 2}}
	})

	done := r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID: "job-1",
		Parameters: schema.Parameters{
			ElementID:       "E1",
			GainMapping:     []string{"0.5"},
			DestinationPath: "/out.wav",
			SourcePath:      "/in.wav",
		},
	}))

	assert.Equal(t, schema.JobStatusCompleted, done.Status)
	assert.Empty(t, done.Message)
	assert.Equal(t, "job-1", done.ID)
	assert.Equal(t, "/in.wav", done.SourcePath)
	assert.Equal(t, "/out.wav", done.DestinationPath)
	require.NotNil(t, done.Source)
	assert.Equal(t, 48000, done.Source.SampleRate)
	require.NotNil(t, done.Worker)
	assert.Equal(t, "ADM Engine worker", done.Worker.Name)

	require.Len(t, rep.results, 1)
	assert.Equal(t, done, rep.results[0])
	assert.Equal(t, []schema.ProcessingStage{
		schema.StageReceived, schema.StageRendering, schema.StageCompleted,
	}, rep.stages())
	assert.Equal(t, []string{"job-1"}, tracker.jobs)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "0.5", fake.calls[0].GainMapping)
}

func TestHandleEngineFailureReportsMessage(t *testing.T) {
	fake := &fakeEngine{outcome: engine.Outcome{Code: 3, Message: []byte("bad element")}}
	rep := &captureReporter{}
	r := newTestRunner(fake, rep, nil)

	done := r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID:      "job-2",
		Parameters: schema.Parameters{ElementID: "E1", SourcePath: "/in.wav", DestinationPath: "/out.wav"},
	}))

	assert.Equal(t, schema.JobStatusError, done.Status)
	assert.Equal(t, "bad element", done.Message)
	assert.Equal(t, schema.FailureTypePermanent, done.FailureType)
	assert.Nil(t, done.Source)
	require.Len(t, rep.results, 1)

	stages := rep.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, schema.StageFailed, stages[len(stages)-1])
	last := rep.lifecycle[len(rep.lifecycle)-1]
	assert.Equal(t, "bad element", last.Error)
	assert.NotZero(t, last.ProcessingEnd)
}

func TestHandleMalformedPayloadSkipsEngine(t *testing.T) {
	fake := &fakeEngine{}
	rep := &captureReporter{}
	r := newTestRunner(fake, rep, nil)

	done := r.Handle(context.Background(), []byte(`{"job_id": "job-3", "parameters": 42}`))

	assert.Equal(t, schema.JobStatusError, done.Status)
	assert.Equal(t, schema.FailureTypeValidation, done.FailureType)
	assert.Contains(t, done.Message, "decode job parameters")
	assert.Equal(t, "job-3", done.ID)
	assert.Empty(t, fake.calls)
	require.Len(t, rep.results, 1)
	assert.Equal(t, []schema.ProcessingStage{schema.StageReceived, schema.StageValidation}, rep.stages())
}

func TestHandleNulByteIsValidationFailure(t *testing.T) {
	fake := &fakeEngine{}
	rep := &captureReporter{}
	r := newTestRunner(fake, rep, nil)

	done := r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID:      "job-4",
		Parameters: schema.Parameters{SourcePath: "/in\x00.wav", DestinationPath: "/out.wav"},
	}))

	assert.Equal(t, schema.JobStatusError, done.Status)
	assert.Equal(t, schema.FailureTypeValidation, done.FailureType)
	assert.Contains(t, done.Message, "source_path")
	assert.Empty(t, fake.calls)
}

func TestHandleAssignsJobIDWhenMissing(t *testing.T) {
	rep := &captureReporter{}
	r := newTestRunner(&fakeEngine{}, rep, nil)

	done := r.Handle(context.Background(), []byte(`{"parameters": {"source_path": "/in.wav", "destination_path": "/out.wav"}}`))

	_, err := uuid.Parse(done.ID)
	assert.NoError(t, err)
	for _, e := range rep.lifecycle {
		assert.Equal(t, done.ID, e.JobID)
	}
}

func TestHandleProbeAndTrackerFailuresDoNotFailJob(t *testing.T) {
	rep := &captureReporter{}
	r := newTestRunner(&fakeEngine{}, rep, func(d *Deps) {
		d.Tracker = &fakeTracker{err: errors.New("db down")}
		d.Prober = &fakeProber{err: errors.New("ffprobe missing")}
	})

	done := r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID:      "job-5",
		Parameters: schema.Parameters{SourcePath: "/in.wav", DestinationPath: "/out.wav"},
	}))

	assert.Equal(t, schema.JobStatusCompleted, done.Status)
	assert.Nil(t, done.Source)
}

func TestHandleReportErrorIsNotFatal(t *testing.T) {
	rep := &captureReporter{err: errors.New("publish failed")}
	r := newTestRunner(&fakeEngine{}, rep, nil)

	done := r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID:      "job-6",
		Parameters: schema.Parameters{SourcePath: "/in.wav", DestinationPath: "/out.wav"},
	}))

	assert.Equal(t, schema.JobStatusCompleted, done.Status)
	assert.Len(t, rep.results, 1)
}

func TestHandleRecordsMetrics(t *testing.T) {
	m := metrics.New()
	rep := &captureReporter{}
	r := newTestRunner(&fakeEngine{outcome: engine.Outcome{Code: 1}}, rep, func(d *Deps) {
		d.Metrics = m
	})

	r.Handle(context.Background(), jobPayload(t, schema.RenderJob{
		JobID:      "job-7",
		Parameters: schema.Parameters{SourcePath: "/in.wav", DestinationPath: "/out.wav"},
	}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `adm_worker_jobs_total{failure_type="permanent",status="error"} 1`)
	assert.Contains(t, rec.Body.String(), "adm_worker_jobs_in_flight 0")
	assert.Contains(t, rec.Body.String(), "adm_worker_job_duration_seconds_count 1")
	assert.Contains(t, rec.Body.String(), "adm_worker_render_duration_seconds_count 1")
}

func TestHandleUndecodableMessageSkipsRenderDuration(t *testing.T) {
	m := metrics.New()
	r := newTestRunner(&fakeEngine{}, &captureReporter{}, func(d *Deps) {
		d.Metrics = m
	})

	r.Handle(context.Background(), []byte("not json"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "adm_worker_job_duration_seconds_count 1")
	assert.Contains(t, rec.Body.String(), "adm_worker_render_duration_seconds_count 0")
}

func TestRunReportsOncePerMessage(t *testing.T) {
	rep := &captureReporter{}
	fake := &fakeEngine{}
	r := newTestRunner(fake, rep, nil)

	src := &sliceSource{messages: [][]byte{
		jobPayload(t, schema.RenderJob{JobID: "a", Parameters: schema.Parameters{SourcePath: "/a.wav", DestinationPath: "/a-out.wav"}}),
		[]byte("not json"),
		jobPayload(t, schema.RenderJob{JobID: "b", Parameters: schema.Parameters{SourcePath: "/b.wav", DestinationPath: "/b-out.wav"}}),
	}}

	require.NoError(t, r.Run(context.Background(), src))

	require.Len(t, rep.results, 3)
	assert.Equal(t, "a", rep.results[0].ID)
	assert.Equal(t, schema.JobStatusError, rep.results[1].Status)
	assert.Equal(t, "b", rep.results[2].ID)
	assert.Len(t, fake.calls, 2)
}

func TestRunTreatsCancellationAsCleanExit(t *testing.T) {
	r := newTestRunner(&fakeEngine{}, &captureReporter{}, nil)
	err := r.Run(context.Background(), cancelSource{})
	assert.NoError(t, err)
}

type cancelSource struct{}

func (cancelSource) Name() string { return "cancel" }

func (cancelSource) Run(context.Context, func(context.Context, []byte)) error {
	return context.Canceled
}
