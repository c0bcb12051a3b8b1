package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/clone-prom-team-2025/server-sub001/broker"
	"github.com/clone-prom-team-2025/server-sub001/broker/brokertest"
)

func TestMemoryBroker(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker {
		return New()
	})
}

func TestRetentionDropsOldest(t *testing.T) {
	b := New(WithRetention(2))
	ctx := context.Background()

	first, _ := b.Publish(ctx, "t", []byte("1"))
	second, _ := b.Publish(ctx, "t", []byte("2"))
	if _, err := b.Publish(ctx, "t", []byte("3")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// first fell out of the window; resuming from it starts fresh.
	s, err := b.Subscribe(ctx, "t", first)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Close()
	if n := s.(*subscription).queued(); n != 0 {
		t.Fatalf("expected empty backlog, got %d", n)
	}

	s2, err := b.Subscribe(ctx, "t", second)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s2.Close()
	env, err := s2.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(env.Data) != "3" {
		t.Fatalf("want 3, got %s", env.Data)
	}
}

func TestSlowSubscriberMissesNothing(t *testing.T) {
	b := New(WithBuffer(1))
	ctx := context.Background()
	s, err := b.Subscribe(ctx, "t", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		if _, err := b.Publish(ctx, "t", []byte(fmt.Sprint(i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		env, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if string(env.Data) != fmt.Sprint(i) {
			t.Fatalf("want %d, got %s", i, env.Data)
		}
	}
}

func TestConcurrentPublishersBurst(t *testing.T) {
	b := New()
	ctx := context.Background()
	s, err := b.Subscribe(ctx, "t", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Close()

	const workers, each = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := b.Publish(ctx, "t", []byte("x")); err != nil {
					t.Errorf("publish: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := s.(*subscription).queued(); got != workers*each {
		t.Fatalf("want %d queued, got %d", workers*each, got)
	}
	prev := int64(0)
	for i := 0; i < workers*each; i++ {
		env, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		id, _ := strconv.ParseInt(env.ID, 10, 64)
		if id <= prev {
			t.Fatalf("ids out of order: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestPublishCopiesPayload(t *testing.T) {
	b := New()
	ctx := context.Background()
	s, _ := b.Subscribe(ctx, "t", "")
	defer s.Close()

	buf := []byte("abc")
	if _, err := b.Publish(ctx, "t", buf); err != nil {
		t.Fatalf("publish: %v", err)
	}
	buf[0] = 'x'
	env, _ := s.Next(ctx)
	if string(env.Data) != "abc" {
		t.Fatalf("payload aliased caller buffer: %s", env.Data)
	}
}
