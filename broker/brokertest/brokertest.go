package brokertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/broker"
)

// BrokerFactory is a function that creates a new broker instance for testing.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribeFromNext", func(t *testing.T) {
		testSubscribeFromNext(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("ResumeFromUnknownEventID", func(t *testing.T) {
		testResumeFromUnknownEventID(t, factory)
	})
	t.Run("MultipleSubscribersToSameTopic", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("OrderPreserved", func(t *testing.T) {
		testOrderPreserved(t, factory)
	})
	t.Run("NextHonorsContext", func(t *testing.T) {
		testNextHonorsContext(t, factory)
	})
	t.Run("CloseEndsStream", func(t *testing.T) {
		testCloseEndsStream(t, factory)
	})
}

func next(t *testing.T, s broker.MessageStream) broker.MessageEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	return env
}

func subscribe(t *testing.T, b broker.Broker, topic, last string) broker.MessageStream {
	t.Helper()
	s, err := b.Subscribe(context.Background(), topic, last)
	if err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publish(t *testing.T, b broker.Broker, topic, data string) string {
	t.Helper()
	id, err := b.Publish(context.Background(), topic, []byte(data))
	if err != nil {
		t.Fatalf("publish %s: %v", topic, err)
	}
	if id == "" {
		t.Fatalf("expected non-empty event id")
	}
	return id
}

func testSubscribeFromNext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	publish(t, b, "notifications", "before")

	s := subscribe(t, b, "notifications", "")
	id := publish(t, b, "notifications", "after")

	env := next(t, s)
	if env.ID != id || string(env.Data) != "after" {
		t.Fatalf("expected only the message published after subscribing, got %s %q", env.ID, env.Data)
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	id1 := publish(t, b, "notifications", "one")
	id2 := publish(t, b, "notifications", "two")
	id3 := publish(t, b, "notifications", "three")

	s := subscribe(t, b, "notifications", id1)
	if env := next(t, s); env.ID != id2 || string(env.Data) != "two" {
		t.Fatalf("want %s/two, got %s/%s", id2, env.ID, env.Data)
	}
	if env := next(t, s); env.ID != id3 || string(env.Data) != "three" {
		t.Fatalf("want %s/three, got %s/%s", id3, env.ID, env.Data)
	}
}

func testResumeFromUnknownEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	publish(t, b, "notifications", "old")

	s := subscribe(t, b, "notifications", "999999999-0")
	id := publish(t, b, "notifications", "new")
	if env := next(t, s); env.ID != id {
		t.Fatalf("want %s, got %s (%s)", id, env.ID, env.Data)
	}
}

func testMultipleSubscribers(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s1 := subscribe(t, b, "logout", "")
	s2 := subscribe(t, b, "logout", "")

	id := publish(t, b, "logout", "sess-1")
	for i, s := range []broker.MessageStream{s1, s2} {
		if env := next(t, s); env.ID != id {
			t.Fatalf("subscriber %d: want %s, got %s", i+1, id, env.ID)
		}
	}
}

func testTopicIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	sa := subscribe(t, b, "topic-a", "")
	sb := subscribe(t, b, "topic-b", "")

	publish(t, b, "topic-a", "for-a")
	publish(t, b, "topic-b", "for-b")

	if env := next(t, sa); string(env.Data) != "for-a" {
		t.Fatalf("topic-a got %q", env.Data)
	}
	if env := next(t, sb); string(env.Data) != "for-b" {
		t.Fatalf("topic-b got %q", env.Data)
	}
}

func testOrderPreserved(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s := subscribe(t, b, "ordered", "")
	for i := 0; i < 20; i++ {
		publish(t, b, "ordered", fmt.Sprint(i))
	}
	for i := 0; i < 20; i++ {
		if env := next(t, s); string(env.Data) != fmt.Sprint(i) {
			t.Fatalf("position %d: got %q", i, env.Data)
		}
	}
}

func testNextHonorsContext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s := subscribe(t, b, "quiet", "")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func testCloseEndsStream(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	s, err := b.Subscribe(context.Background(), "closing", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF after close, got %v", err)
	}
}
