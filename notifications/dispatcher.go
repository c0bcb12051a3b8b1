package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/registry"
)

// Recipient is a live connection able to receive signals. Signal must not
// block on a slow peer; it returns an error when the signal cannot be
// queued (closed connection, full buffer).
type Recipient interface {
	ID() string
	Signal(ctx context.Context, method string, params any) error
}

// Notifier is the server-internal API business code uses to reach
// connected clients.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Terminate(ctx context.Context, sessionID string) error
}

// Report summarises one SendNotification call.
type Report struct {
	Targeted  int `json:"targeted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher delivers notifications and logout signals to the connections
// tracked by a registry owned by the transport.
type Dispatcher struct {
	reg           *registry.Registry[Recipient]
	log           *slog.Logger
	now           func() time.Time
	logoutMessage string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the time source used for CreatedAt defaults.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogoutMessage overrides the text sent with ForceLogout.
func WithLogoutMessage(msg string) Option {
	return func(d *Dispatcher) {
		if msg != "" {
			d.logoutMessage = msg
		}
	}
}

// NewDispatcher creates a Dispatcher over reg.
func NewDispatcher(reg *registry.Registry[Recipient], opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:           reg,
		log:           slog.Default(),
		now:           time.Now,
		logoutMessage: DefaultLogoutMessage,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendNotification pushes n to every connection of n.To, or to every
// connection when n.To is empty. Failures on individual connections are
// logged and skipped. Offline targets are dropped; nothing is queued.
func (d *Dispatcher) SendNotification(ctx context.Context, n Notification) Report {
	n.Normalize(d.now())

	var targets []Recipient
	if n.IsBroadcast() {
		targets = d.reg.All()
	} else {
		targets = d.reg.ConnectionsFor(n.To)
	}

	rep := Report{Targeted: len(targets)}
	if len(targets) == 0 {
		if !n.IsBroadcast() {
			d.log.InfoContext(ctx, "notification.drop.offline",
				slog.String("notification_id", n.ID),
				slog.String("to", n.To),
				slog.String("type", n.Type))
		}
		return rep
	}

	for _, c := range targets {
		if err := d.signal(ctx, c, SignalReceiveNotification, n); err != nil {
			rep.Failed++
			d.log.WarnContext(ctx, "notification.send.fail",
				slog.String("notification_id", n.ID),
				slog.String("conn_id", c.ID()),
				slog.String("err", err.Error()))
			continue
		}
		rep.Delivered++
	}

	d.log.DebugContext(ctx, "notification.sent",
		slog.String("notification_id", n.ID),
		slog.String("to", n.To),
		slog.Bool("broadcast", n.IsBroadcast()),
		slog.Int("delivered", rep.Delivered),
		slog.Int("failed", rep.Failed))
	return rep
}

// signal shields the caller from a misbehaving Recipient.
func (d *Dispatcher) signal(ctx context.Context, c Recipient, method string, params any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return c.Signal(ctx, method, params)
}

// Notify implements Notifier with local delivery.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	d.SendNotification(ctx, n)
	return nil
}

// Stats returns the registry counts.
func (d *Dispatcher) Stats() registry.Stats { return d.reg.Stats() }

type panicError struct{ value any }

func (p *panicError) Error() string { return "recipient panicked" }

var _ Notifier = (*Dispatcher)(nil)
