package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/auth"
	"github.com/clone-prom-team-2025/server-sub001/internal/jsonrpc"
	"github.com/clone-prom-team-2025/server-sub001/internal/logctx"
	"github.com/gorilla/websocket"
)

// State is a connection's lifecycle state.
type State string

const (
	StateConnecting   State = "connecting"
	StateValidating   State = "validating"
	StateRegistered   State = "registered"
	StateDisconnected State = "disconnected"
)

type outbound struct {
	payload []byte
	// closeAfter ends the connection once payload is written.
	closeAfter bool
	closeCode  int
	closeText  string
}

// Conn is one upgraded WebSocket connection. Its exported methods are safe
// for concurrent use; frames are written by a single writer goroutine.
type Conn struct {
	id  string
	hub *Hub
	ws  *websocket.Conn
	ui  auth.UserInfo
	ld  *logctx.ConnData

	sendMu   sync.Mutex
	send     chan outbound
	accepted bool // false once a terminal message is queued or the reader stopped
	closing  bool // a terminal message is queued

	stop       chan struct{}
	stopOnce   sync.Once
	writerDone chan struct{}

	stateMu   sync.RWMutex
	state     State
	sessionID string
}

func newConn(h *Hub, id string, ws *websocket.Conn, ui auth.UserInfo) *Conn {
	return &Conn{
		id:         id,
		hub:        h,
		ws:         ws,
		ui:         ui,
		ld:         &logctx.ConnData{ConnID: id, UserID: ui.UserID()},
		send:       make(chan outbound, h.opts.sendQueueSize),
		accepted:   true,
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      StateConnecting,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user.
func (c *Conn) UserID() string { return c.ui.UserID() }

// SessionID returns the session bound at the last successful validation.
func (c *Conn) SessionID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Conn) bindSession(sid string) {
	c.stateMu.Lock()
	c.sessionID = sid
	c.state = StateRegistered
	c.stateMu.Unlock()
}

// Signal queues a JSON-RPC notification. It never blocks. A ForceLogout
// signal is the last message the connection sends before closing.
func (c *Conn) Signal(ctx context.Context, method string, params any) error {
	b, err := json.Marshal(jsonrpc.NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	o := outbound{payload: b}
	if method == SignalForceLogout {
		o.closeAfter = true
		o.closeCode = websocket.ClosePolicyViolation
		o.closeText = "session terminated"
	}
	return c.enqueue(o)
}

// signalAndClose sends an Error signal and closes the connection after it.
func (c *Conn) signalAndClose(p ErrorParams) error {
	b, err := json.Marshal(jsonrpc.NewNotification(SignalError, p))
	if err != nil {
		return err
	}
	return c.enqueue(outbound{payload: b, closeAfter: true, closeCode: websocket.ClosePolicyViolation, closeText: p.Reason})
}

func (c *Conn) reply(resp *jsonrpc.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.enqueue(outbound{payload: b})
}

func (c *Conn) enqueue(o outbound) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.accepted {
		return ErrConnectionClosed
	}
	select {
	case c.send <- o:
		if o.closeAfter {
			c.accepted = false
			c.closing = true
		}
		return nil
	default:
		return ErrSendQueueFull
	}
}

// closeWith queues a bare close frame.
func (c *Conn) closeWith(code int, text string) {
	if err := c.enqueue(outbound{closeAfter: true, closeCode: code, closeText: text}); errors.Is(err, ErrSendQueueFull) {
		c.halt()
	}
}

func (c *Conn) flushing() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closing
}

// halt stops the writer without flushing.
func (c *Conn) halt() {
	c.sendMu.Lock()
	c.accepted = false
	c.sendMu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Conn) writePump() {
	o := c.hub.opts
	ticker := time.NewTicker(o.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(o.writeTimeout))
			if len(msg.payload) > 0 {
				if err := c.ws.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					return
				}
			}
			if msg.closeAfter {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(msg.closeCode, msg.closeText),
					time.Now().Add(o.writeTimeout))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(o.writeTimeout)); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// readPump handles inbound frames in order until the peer goes away.
func (c *Conn) readPump(ctx context.Context) {
	o := c.hub.opts
	c.ws.SetReadLimit(o.maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(o.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(o.pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.ClosePolicyViolation) {
				c.hub.log.InfoContext(ctx, "conn.read.fail", slog.String("err", err.Error()))
			}
			return
		}
		c.hub.handleFrame(ctx, c, data)
	}
}
