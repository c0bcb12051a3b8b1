package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/broker"
)

// DefaultTopic is the broker topic shared by all gateway instances.
const DefaultTopic = "realtime.events"

const (
	eventNotify    = "notify"
	eventTerminate = "terminate"
)

// relayEvent is the broker payload.
type relayEvent struct {
	Kind         string        `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	SessionID    string        `json:"sessionId,omitempty"`
}

// Relay implements Notifier by publishing to a broker. Every instance runs
// Relay.Run, which applies the published events to its local Dispatcher, so
// a notification reaches the user whichever instance holds the connection.
type Relay struct {
	b        broker.Broker
	d        *Dispatcher
	topic    string
	log      *slog.Logger
	now      func() time.Time
	retryMin time.Duration
	retryMax time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) RelayOption {
	return func(r *Relay) {
		if topic != "" {
			r.topic = topic
		}
	}
}

// WithRelayLogger sets the logger. Defaults to slog.Default().
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRetryBackoff bounds the delay between resubscription attempts.
func WithRetryBackoff(lo, hi time.Duration) RelayOption {
	return func(r *Relay) {
		if lo > 0 && hi >= lo {
			r.retryMin, r.retryMax = lo, hi
		}
	}
}

// NewRelay creates a Relay publishing to b and delivering through d.
func NewRelay(b broker.Broker, d *Dispatcher, opts ...RelayOption) *Relay {
	r := &Relay{
		b:        b,
		d:        d,
		topic:    DefaultTopic,
		log:      slog.Default(),
		now:      time.Now,
		retryMin: 100 * time.Millisecond,
		retryMax: 5 * time.Second,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify normalizes n and publishes it. Delivery happens asynchronously in
// Run on every instance.
func (r *Relay) Notify(ctx context.Context, n Notification) error {
	n.Normalize(r.now())
	return r.publish(ctx, relayEvent{Kind: eventNotify, Notification: &n})
}

// Terminate publishes a ForceLogout request for sessionID.
func (r *Relay) Terminate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	return r.publish(ctx, relayEvent{Kind: eventTerminate, SessionID: sessionID})
}

func (r *Relay) publish(ctx context.Context, ev relayEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode relay event: %w", err)
	}
	if _, err := r.b.Publish(ctx, r.topic, b); err != nil {
		return fmt.Errorf("publish relay event: %w", err)
	}
	return nil
}

// Run consumes the topic until ctx is done, applying each event locally.
// When the stream ends cleanly (for example after the topic is cleaned up)
// Run resubscribes at once; broker failures are logged and retried with
// backoff. Either way the new subscription resumes after the last applied
// event when the broker still retains it, and otherwise starts at the next
// published event, so events published while no subscription is held are
// not seen. Run returns nil when ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	lastID := ""
	delay := r.retryMin
	for {
		err := r.consume(ctx, &lastID)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			r.log.InfoContext(ctx, "relay.stream.end", slog.String("topic", r.topic))
			delay = r.retryMin
			continue
		}
		r.log.WarnContext(ctx, "relay.subscribe.fail",
			slog.String("topic", r.topic),
			slog.String("err", err.Error()),
			slog.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, r.retryMax)
	}
}

// Ready is closed once Run holds its first subscription. Events published
// before that are not seen by this instance.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// consume runs one subscription; it returns nil when the stream ended
// cleanly (io.EOF) and an error otherwise.
func (r *Relay) consume(ctx context.Context, lastID *string) error {
	stream, err := r.b.Subscribe(ctx, r.topic, *lastID)
	if err != nil {
		return err
	}
	defer stream.Close()
	r.log.InfoContext(ctx, "relay.subscribed", slog.String("topic", r.topic), slog.String("after", *lastID))
	r.readyOnce.Do(func() { close(r.ready) })

	for {
		env, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		*lastID = env.ID
		r.apply(ctx, env)
	}
}

func (r *Relay) apply(ctx context.Context, env broker.MessageEnvelope) {
	var ev relayEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		r.log.WarnContext(ctx, "relay.event.invalid", slog.String("event_id", env.ID), slog.String("err", err.Error()))
		return
	}
	switch ev.Kind {
	case eventNotify:
		if ev.Notification == nil {
			r.log.WarnContext(ctx, "relay.event.invalid", slog.String("event_id", env.ID), slog.String("err", "missing notification"))
			return
		}
		r.d.SendNotification(ctx, *ev.Notification)
	case eventTerminate:
		r.d.ForceLogout(ctx, ev.SessionID)
	default:
		r.log.WarnContext(ctx, "relay.event.unknown", slog.String("event_id", env.ID), slog.String("kind", ev.Kind))
	}
}

var _ Notifier = (*Relay)(nil)
