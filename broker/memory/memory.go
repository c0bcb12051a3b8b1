// Package memory provides an in-memory implementation of broker.Broker
// using Go channels. It suits single-instance deployments and tests.
package memory

import (
	"context"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/clone-prom-team-2025/server-sub001/broker"
)

const (
	defaultRetention = 1024
	defaultBuffer    = 256
)

// Broker implements broker.Broker with process-local state.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
	seq    atomic.Int64

	retention int
	buffer    int
}

type topic struct {
	messages []broker.MessageEnvelope
	subs     map[*subscription]struct{}
}

// subscription queues every message published while it is open. The queue
// grows instead of dropping when the consumer falls behind.
type subscription struct {
	b     *Broker
	topic string

	mu      sync.Mutex
	pending []broker.MessageEnvelope
	wake    chan struct{}

	done chan struct{}
	once sync.Once
}

// Option configures a Broker.
type Option func(*Broker)

// WithRetention caps how many messages per topic are kept for resumption.
func WithRetention(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.retention = n
		}
	}
}

// WithBuffer sets the initial capacity of each subscriber queue.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates a new memory-based broker instance.
func New(opts ...Option) *Broker {
	b := &Broker{
		topics:    make(map[string]*topic),
		retention: defaultRetention,
		buffer:    defaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subs: make(map[*subscription]struct{})}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data = append([]byte(nil), data...)

	b.mu.Lock()
	defer b.mu.Unlock()
	// IDs are assigned under the lock so queue order matches ID order.
	env := broker.MessageEnvelope{ID: strconv.FormatInt(b.seq.Add(1), 10), Data: data}
	t := b.topicLocked(name)
	t.messages = append(t.messages, env)
	if over := len(t.messages) - b.retention; over > 0 {
		t.messages = append([]broker.MessageEnvelope(nil), t.messages[over:]...)
	}
	for sub := range t.subs {
		sub.push(env)
	}
	return env.ID, nil
}

func (b *Broker) Subscribe(ctx context.Context, name string, lastEventID string) (broker.MessageStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topicLocked(name)

	var backlog []broker.MessageEnvelope
	if lastEventID != "" {
		for i, m := range t.messages {
			if m.ID == lastEventID {
				backlog = t.messages[i+1:]
				break
			}
		}
	}

	sub := &subscription{
		b:       b,
		topic:   name,
		pending: make([]broker.MessageEnvelope, 0, b.buffer+len(backlog)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sub.pending = append(sub.pending, backlog...)
	t.subs[sub] = struct{}{}
	return sub, nil
}

func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	t, ok := b.topics[name]
	delete(b.topics, name)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	for sub := range t.subs {
		sub.shutdown()
	}
	return nil
}

func (s *subscription) shutdown() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) push(env broker.MessageEnvelope) {
	s.mu.Lock()
	s.pending = append(s.pending, env)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (broker.MessageEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return broker.MessageEnvelope{}, false
	}
	env := s.pending[0]
	s.pending[0] = broker.MessageEnvelope{}
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.pending = s.pending[:0:0]
	}
	return env, true
}

func (s *subscription) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *subscription) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	for {
		select {
		case <-s.done:
			return broker.MessageEnvelope{}, io.EOF
		default:
		}
		if env, ok := s.pop(); ok {
			return env, nil
		}
		select {
		case <-s.wake:
		case <-s.done:
			return broker.MessageEnvelope{}, io.EOF
		case <-ctx.Done():
			return broker.MessageEnvelope{}, ctx.Err()
		}
	}
}

func (s *subscription) Close() error {
	s.b.mu.Lock()
	if t, ok := s.b.topics[s.topic]; ok {
		delete(t.subs, s)
	}
	s.b.mu.Unlock()
	s.shutdown()
	return nil
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*subscription)(nil)
)
