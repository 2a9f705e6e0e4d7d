// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultDrainTimeout = 30 * time.Second

type Client struct {
	nc     *nats.Conn
	closed chan struct{}
}

// Connect dials url. Extra options are applied after the defaults, so a
// caller can override e.g. nats.DrainTimeout.
func Connect(url string, name string, opts ...nats.Option) (*Client, error) {
	closed := make(chan struct{})
	var once sync.Once
	base := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.ClosedHandler(func(*nats.Conn) { once.Do(func() { close(closed) }) }),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, closed: closed}, nil
}

// Close drains the connection and blocks until it is closed, so buffered
// publishes are flushed before it returns. The wait is bounded by the
// connection's drain timeout.
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
	<-c.closed
}

// Ping flushes the connection to check the server round trip.
func (c *Client) Ping(ctx context.Context) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return c.nc.FlushWithContext(ctx)
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// QueueSubscribeJSON delivers each message of the queue group to handler.
// Messages of one subscription are handled one at a time.
func (c *Client) QueueSubscribeJSON(ctx context.Context, subject, queue string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
}

// Subscriber consumes render jobs from a NATS queue group.
type Subscriber struct {
	client       *Client
	subject      string
	queue        string
	concurrency  int
	drainTimeout time.Duration
}

func NewSubscriber(client *Client, subject, queue string, concurrency int) *Subscriber {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Subscriber{
		client:       client,
		subject:      subject,
		queue:        queue,
		concurrency:  concurrency,
		drainTimeout: defaultDrainTimeout,
	}
}

// WithDrainTimeout bounds how long Run waits for in-flight handlers after
// ctx is done.
func (s *Subscriber) WithDrainTimeout(d time.Duration) *Subscriber {
	if d > 0 {
		s.drainTimeout = d
	}
	return s
}

func (s *Subscriber) Name() string { return "nats" }

// Run opens one queue subscription per concurrency slot and blocks until ctx
// is done. It then drains the subscriptions, so messages already delivered
// to this client are still handed to handler, and returns once every
// handler call has finished or the drain timeout has passed.
func (s *Subscriber) Run(ctx context.Context, handler func(ctx context.Context, data []byte)) error {
	var inFlight sync.WaitGroup
	tracked := func(hctx context.Context, data []byte) {
		inFlight.Add(1)
		defer inFlight.Done()
		handler(hctx, data)
	}

	subs := make([]*nats.Subscription, 0, s.concurrency)
	for i := 0; i < s.concurrency; i++ {
		sub, err := s.client.QueueSubscribeJSON(ctx, s.subject, s.queue, tracked)
		if err != nil {
			s.drain(subs, &inFlight)
			return fmt.Errorf("subscribe %s (queue %s): %w", s.subject, s.queue, err)
		}
		subs = append(subs, sub)
	}

	<-ctx.Done()
	if err := s.drain(subs, &inFlight); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Subscriber) drain(subs []*nats.Subscription, inFlight *sync.WaitGroup) error {
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			_ = sub.Unsubscribe()
		}
	}

	done := make(chan struct{})
	go func() {
		// A subscription stays valid until its pending messages have been
		// delivered, so wait for that before waiting on the handlers.
		for _, sub := range subs {
			for sub.IsValid() {
				time.Sleep(10 * time.Millisecond)
			}
		}
		inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.drainTimeout):
		return fmt.Errorf("drain %s (queue %s): timed out after %s with handlers still running", s.subject, s.queue, s.drainTimeout)
	}
}
