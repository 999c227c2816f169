// Package transport holds the two ways the client reaches the task engine: a
// persistent websocket (primary) and request/response polling (fallback).
// Neither adapter retries on its own; the supervisor decides that.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/livesync/pkg/model"
)

// EventKind is the lifecycle event a primary attempt reports.
type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventClosed
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	}
	return "unknown"
}

// Terminal reports whether the event ends the attempt.
func (k EventKind) Terminal() bool {
	return k == EventClosed || k == EventErrored
}

// Event is delivered to the handler of an attempt. Payload is set for
// messages; Err for closed and errored events.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     *model.TransportError
}

type Handler func(Event)

// Link is the owning handle of one connection attempt.
type Link interface {
	// Send writes one frame. It fails with model.ErrNotConnected unless the
	// attempt is open and never queues.
	Send(payload []byte) error
	// Detach drops the handler and closes the connection. Nothing is
	// delivered after Detach returns.
	Detach()
}

// Primary opens websocket attempts.
type Primary struct {
	Dialer *websocket.Dialer
	// ReadTimeout closes an attempt that hears nothing, not even a ping, for
	// this long. Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewPrimary(handshakeTimeout, readTimeout time.Duration) *Primary {
	return &Primary{
		Dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: 5 * time.Second,
	}
}

// Open starts one attempt against addr and returns its handle immediately.
// Exactly one of EventClosed or EventErrored ends it; EventOpened is
// delivered at most once and always first.
func (p *Primary) Open(addr string, h Handler) Link {
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{primary: p, handler: h, cancel: cancel}
	go a.run(ctx, addr)
	return a
}

type attempt struct {
	primary *Primary
	cancel  context.CancelFunc

	mu      sync.Mutex
	handler Handler
	conn    *websocket.Conn
	open    bool

	writeMu sync.Mutex
}

func (a *attempt) run(ctx context.Context, addr string) {
	conn, _, err := a.primary.Dialer.DialContext(ctx, addr, nil)
	if err != nil {
		a.finish(Event{Kind: EventErrored, Err: &model.TransportError{
			Code: websocket.CloseAbnormalClosure,
			Err:  fmt.Errorf("failed to dial: %w", err),
		}})
		return
	}

	a.mu.Lock()
	if a.handler == nil {
		a.mu.Unlock()
		_ = conn.Close()
		return
	}
	a.conn = conn
	a.open = true
	a.mu.Unlock()

	readTimeout := a.primary.ReadTimeout
	conn.SetPingHandler(func(data string) error {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	a.emit(Event{Kind: EventOpened})

	for {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		mt, payload, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				a.finish(Event{Kind: EventClosed, Err: &model.TransportError{Code: ce.Code, Reason: ce.Text}})
			} else {
				a.finish(Event{Kind: EventErrored, Err: &model.TransportError{
					Code: websocket.CloseAbnormalClosure,
					Err:  fmt.Errorf("failed to read message: %w", err),
				}})
			}
			return
		}
		if mt != websocket.TextMessage {
			slog.Debug("ignoring non-text frame", "type", mt)
			continue
		}
		a.emit(Event{Kind: EventMessage, Payload: payload})
	}
}

func (a *attempt) emit(ev Event) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// finish delivers the terminal event and releases the connection.
func (a *attempt) finish(ev Event) {
	a.mu.Lock()
	h := a.handler
	a.handler = nil
	a.open = false
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if h != nil {
		h(ev)
	}
}

func (a *attempt) Send(payload []byte) error {
	a.mu.Lock()
	conn, open := a.conn, a.open
	a.mu.Unlock()
	if !open {
		return model.ErrNotConnected
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if a.primary.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.primary.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (a *attempt) Detach() {
	a.mu.Lock()
	a.handler = nil
	a.open = false
	conn := a.conn
	a.mu.Unlock()
	a.cancel()
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
}
