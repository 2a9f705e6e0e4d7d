package report

import (
	"context"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// JSONPublisher is satisfied by *bus.Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// NATSReporter publishes results on subject and lifecycle events on
// subject + ".lifecycle".
type NATSReporter struct {
	pub     JSONPublisher
	subject string
}

func NewNATSReporter(pub JSONPublisher, subject string) *NATSReporter {
	return &NATSReporter{pub: pub, subject: subject}
}

func (r *NATSReporter) Name() string { return "nats" }

func (r *NATSReporter) Report(_ context.Context, done schema.RenderDone) error {
	return r.pub.PublishJSON(r.subject, done)
}

func (r *NATSReporter) Lifecycle(_ context.Context, event schema.RenderLifecycleEvent) error {
	return r.pub.PublishJSON(r.subject+".lifecycle", event)
}
