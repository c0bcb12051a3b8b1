package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/registry"
)

type sent struct {
	method string
	params any
}

type fakeConn struct {
	id string

	mu      sync.Mutex
	signals []sent
	fail    error
	panics  bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Signal(ctx context.Context, method string, params any) error {
	if c.panics {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.signals = append(c.signals, sent{method: method, params: params})
	return nil
}

func (c *fakeConn) received() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.signals...)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newDispatcher(opts ...Option) (*Dispatcher, *registry.Registry[Recipient]) {
	reg := registry.New[Recipient]()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewDispatcher(reg, opts...), reg
}

func TestSendNotification_OfflineTargetIsDropped(t *testing.T) {
	d, reg := newDispatcher()
	other := newConn("c-other")
	reg.RegisterUserConnection("u2", other)

	rep := d.SendNotification(context.Background(), Notification{To: "u1", Type: TypeOrder, Message: "shipped"})
	if rep != (Report{}) {
		t.Fatalf("expected empty report, got %+v", rep)
	}
	if n := len(other.received()); n != 0 {
		t.Fatalf("unrelated connection received %d signals", n)
	}
}

func TestSendNotification_FailureDoesNotStopOtherConnections(t *testing.T) {
	d, reg := newDispatcher()
	c1, c2 := newConn("c1"), newConn("c2")
	c1.fail = errors.New("connection closed")
	reg.RegisterUserConnection("u1", c1)
	reg.RegisterUserConnection("u1", c2)

	rep := d.SendNotification(context.Background(), Notification{To: "u1", Type: TypeDelivery, Message: "out for delivery"})
	if rep.Targeted != 2 || rep.Delivered != 1 || rep.Failed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	got := c2.received()
	if len(got) != 1 || got[0].method != SignalReceiveNotification {
		t.Fatalf("c2 should receive exactly one notification, got %+v", got)
	}
	if n, ok := got[0].params.(Notification); !ok || n.Message != "out for delivery" {
		t.Fatalf("unexpected payload: %#v", got[0].params)
	}
}

func TestSendNotification_PanickingRecipientIsSkipped(t *testing.T) {
	d, reg := newDispatcher()
	bad, good := newConn("bad"), newConn("good")
	bad.panics = true
	reg.RegisterUserConnection("u1", bad)
	reg.RegisterUserConnection("u1", good)

	rep := d.SendNotification(context.Background(), Notification{To: "u1"})
	if rep.Delivered != 1 || rep.Failed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(good.received()) != 1 {
		t.Fatalf("good connection missed the notification")
	}
}

func TestSendNotification_BroadcastReachesEveryConnection(t *testing.T) {
	d, reg := newDispatcher()
	a1, a2, b1 := newConn("a1"), newConn("a2"), newConn("b1")
	reg.RegisterUserConnection("ua", a1)
	reg.RegisterUserConnection("ua", a2)
	reg.RegisterUserConnection("ub", b1)
	// A session-only mapping is not a user connection and must not change the count.
	reg.RegisterSessionConnection("s-a1", a1)

	rep := d.SendNotification(context.Background(), Notification{Type: TypeSystem, Message: "maintenance at 02:00"})
	if rep.Targeted != 3 || rep.Delivered != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	for _, c := range []*fakeConn{a1, a2, b1} {
		if got := c.received(); len(got) != 1 {
			t.Fatalf("%s received %d signals, want 1", c.id, len(got))
		}
	}
}

func TestSendNotification_BroadcastWithNoConnections(t *testing.T) {
	d, _ := newDispatcher()
	if rep := d.SendNotification(context.Background(), Notification{Message: "hello"}); rep != (Report{}) {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestSendNotification_FillsDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d, reg := newDispatcher(WithClock(func() time.Time { return now }))
	c := newConn("c1")
	reg.RegisterUserConnection("u1", c)

	d.SendNotification(context.Background(), Notification{To: "u1", Type: TypeReview, Message: "new review"})
	got := c.received()
	if len(got) != 1 {
		t.Fatalf("expected one signal, got %d", len(got))
	}
	n := got[0].params.(Notification)
	if n.From != DefaultSender {
		t.Fatalf("want From %q, got %q", DefaultSender, n.From)
	}
	if n.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !n.CreatedAt.Equal(now) {
		t.Fatalf("want CreatedAt %v, got %v", now, n.CreatedAt)
	}
}

func TestNormalizeKeepsExplicitFields(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := Notification{ID: "n1", From: "store-42", CreatedAt: at}
	n.Normalize(time.Now())
	if n.ID != "n1" || n.From != "store-42" || !n.CreatedAt.Equal(at) {
		t.Fatalf("explicit fields overwritten: %+v", n)
	}
	if n.IsBroadcast() != true {
		t.Fatalf("empty To must broadcast")
	}
}

func TestForceLogout_UnregisteredSessionIsNoop(t *testing.T) {
	d, reg := newDispatcher()
	c := newConn("c1")
	reg.RegisterUserConnection("u1", c)

	if d.ForceLogout(context.Background(), "missing") {
		t.Fatalf("expected false for unregistered session")
	}
	if len(c.received()) != 0 {
		t.Fatalf("no signal expected")
	}
	if err := d.Terminate(context.Background(), "missing"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
}

func TestForceLogout_SendsExactlyOneSignal(t *testing.T) {
	d, reg := newDispatcher(WithLogoutMessage("Signed out by admin"))
	c, sibling := newConn("c1"), newConn("c2")
	reg.RegisterUserConnection("u1", c)
	reg.RegisterUserConnection("u1", sibling)
	reg.RegisterSessionConnection("s1", c)

	if !d.ForceLogout(context.Background(), "s1") {
		t.Fatalf("expected true for registered session")
	}
	got := c.received()
	if len(got) != 1 || got[0].method != SignalForceLogout {
		t.Fatalf("want exactly one ForceLogout, got %+v", got)
	}
	p := got[0].params.(ForceLogoutParams)
	if p.SessionID != "s1" || p.Message != "Signed out by admin" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if len(sibling.received()) != 0 {
		t.Fatalf("other connections of the user must not be signalled")
	}
	// The registry keeps the mapping; the transport removes it on close.
	if _, ok := reg.ConnectionFor("s1"); !ok {
		t.Fatalf("dispatcher must not unregister connections")
	}
}

func TestForceLogout_TargetsLatestRegistration(t *testing.T) {
	d, reg := newDispatcher()
	old, cur := newConn("old"), newConn("cur")
	reg.RegisterSessionConnection("s1", old)
	reg.RegisterSessionConnection("s1", cur)

	d.ForceLogout(context.Background(), "s1")
	if len(old.received()) != 0 || len(cur.received()) != 1 {
		t.Fatalf("want signal on latest connection only (old=%d cur=%d)", len(old.received()), len(cur.received()))
	}
}

func TestForceLogout_SendFailureReportsFalse(t *testing.T) {
	d, reg := newDispatcher()
	c := newConn("c1")
	c.fail = errors.New("send queue full")
	reg.RegisterSessionConnection("s1", c)
	if d.ForceLogout(context.Background(), "s1") {
		t.Fatalf("expected false when the signal cannot be queued")
	}
}

func TestConcurrentDispatchAndRegistration(t *testing.T) {
	d, reg := newDispatcher()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		c := newConn(string(rune('a' + i)))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.RegisterUserConnection("u1", c)
				reg.UnregisterUserConnection(c)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.SendNotification(context.Background(), Notification{To: "u1"})
				d.SendNotification(context.Background(), Notification{})
			}
		}()
	}
	wg.Wait()
	if s := d.Stats(); s.Users != 0 || s.Connections != 0 {
		t.Fatalf("expected empty registry, got %+v", s)
	}
}
