// Package redis implements broker.Broker on Redis Streams so that every
// gateway instance sharing a Redis deployment sees the same topic log.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/broker"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. If nil, one is created for RedisAddr.
	Client redis.UniversalClient `yaml:"-"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379" yaml:"redis_addr"`
	// KeyPrefix is prepended to every stream key. ENV: BROKER_KEY_PREFIX
	KeyPrefix string `env:"BROKER_KEY_PREFIX,default=marketplace:broker:" yaml:"key_prefix"`
	// MaxLen approximately caps each stream. ENV: BROKER_STREAM_MAXLEN
	MaxLen int64 `env:"BROKER_STREAM_MAXLEN,default=10000" yaml:"max_len"`
	// BlockTimeout bounds each XREAD so closed streams are noticed.
	BlockTimeout time.Duration `env:"BROKER_BLOCK_TIMEOUT,default=1s" yaml:"block_timeout"`
}

// Broker is a Redis Streams implementation of broker.Broker.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
	block     time.Duration
}

// New creates a new Redis-based broker instance.
func New(cfg Config) *Broker {
	client := cfg.Client
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	b := &Broker{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		maxLen:    cfg.MaxLen,
		block:     cfg.BlockTimeout,
	}
	if b.keyPrefix == "" {
		b.keyPrefix = "marketplace:broker:"
	}
	if b.block <= 0 {
		b.block = time.Second
	}
	return b
}

// NewFromEnv builds a Broker from environment variables and checks the
// connection.
func NewFromEnv(ctx context.Context) (*Broker, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis broker config: %w", err)
	}
	b := New(cfg)
	if err := b.client.Ping(ctx).Err(); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return b, nil
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) streamKey(topic string) string {
	return b.keyPrefix + "stream:" + topic
}

func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: b.streamKey(topic),
		Values: map[string]any{"data": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream %s: %w", args.Stream, err)
	}
	return id, nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string, lastEventID string) (broker.MessageStream, error) {
	key := b.streamKey(topic)
	start := lastEventID
	if start == "" || !b.known(ctx, key, start) {
		// Pin the current tail so messages published between XREAD calls are
		// not skipped, which reading from "$" each time would do.
		tail, err := b.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read tail of stream %s: %w", key, err)
		}
		start = "0-0"
		if len(tail) > 0 {
			start = tail[0].ID
		}
	}
	return &stream{client: b.client, key: key, lastID: start, block: b.block}, nil
}

// known reports whether id still exists in the stream.
func (b *Broker) known(ctx context.Context, key, id string) bool {
	msgs, err := b.client.XRangeN(ctx, key, id, id, 1).Result()
	return err == nil && len(msgs) == 1
}

func (b *Broker) Cleanup(ctx context.Context, topic string) error {
	if err := b.client.Del(ctx, b.streamKey(topic)).Err(); err != nil {
		return fmt.Errorf("cleanup stream %s: %w", topic, err)
	}
	return nil
}

type stream struct {
	client  redis.UniversalClient
	key     string
	lastID  string
	block   time.Duration
	pending []redis.XMessage
	closed  atomic.Bool
}

func (s *stream) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	for {
		if s.closed.Load() {
			return broker.MessageEnvelope{}, io.EOF
		}
		for len(s.pending) > 0 {
			m := s.pending[0]
			s.pending = s.pending[1:]
			s.lastID = m.ID
			data, ok := m.Values["data"].(string)
			if !ok {
				continue
			}
			return broker.MessageEnvelope{ID: m.ID, Data: []byte(data)}, nil
		}
		if err := ctx.Err(); err != nil {
			return broker.MessageEnvelope{}, err
		}

		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.lastID},
			Count:   64,
			Block:   s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return broker.MessageEnvelope{}, ctx.Err()
			}
			return broker.MessageEnvelope{}, fmt.Errorf("read from stream %s: %w", s.key, err)
		}
		for _, st := range res {
			s.pending = append(s.pending, st.Messages...)
		}
	}
}

func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*stream)(nil)
)
