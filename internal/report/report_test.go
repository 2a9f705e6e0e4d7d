package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

type published struct {
	subject string
	value   any
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) PublishJSON(subject string, v any) error {
	f.msgs = append(f.msgs, published{subject, v})
	return f.err
}

type fakePusher struct {
	values []any
}

func (f *fakePusher) PushResult(_ context.Context, v any) error {
	f.values = append(f.values, v)
	return nil
}

func TestNATSReporterSubjects(t *testing.T) {
	pub := &fakePublisher{}
	r := NewNATSReporter(pub, "adm.render.done")

	require.NoError(t, r.Report(context.Background(), schema.RenderDone{ID: "job-1"}))
	require.NoError(t, r.Lifecycle(context.Background(), schema.RenderLifecycleEvent{JobID: "job-1", Stage: schema.StageRendering}))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "adm.render.done", pub.msgs[0].subject)
	assert.Equal(t, "adm.render.done.lifecycle", pub.msgs[1].subject)
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	failing := NewNATSReporter(&fakePublisher{err: errors.New("nats down")}, "done")
	pusher := &fakePusher{}
	m := NewMulti(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), failing)
	m.Add(NewRedisReporter(pusher))

	err := m.Report(context.Background(), schema.RenderDone{ID: "job-2"})

	assert.EqualError(t, err, "nats down")
	require.Len(t, pusher.values, 1)
	assert.Equal(t, "job-2", pusher.values[0].(schema.RenderDone).ID)
	assert.Equal(t, 2, m.Len())
}

func TestMultiLifecycleSkipsReportersWithoutLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	pusher := &fakePusher{}
	m := NewMulti(nil, NewRedisReporter(pusher), NewNATSReporter(pub, "done"))

	require.NoError(t, m.Lifecycle(context.Background(), schema.RenderLifecycleEvent{JobID: "job-3", Stage: schema.StageReceived}))

	assert.Empty(t, pusher.values)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "done.lifecycle", pub.msgs[0].subject)
}
