package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/transport"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f, clock: c}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Advance moves time forward and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeOpener struct {
	mu     sync.Mutex
	links  []*fakeLink
	opened chan *fakeLink
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: make(chan *fakeLink, 64)}
}

func (o *fakeOpener) Open(addr string, h transport.Handler) transport.Link {
	l := &fakeLink{addr: addr, handler: h, raw: h}
	o.mu.Lock()
	o.links = append(o.links, l)
	o.mu.Unlock()
	o.opened <- l
	return l
}

func (o *fakeOpener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

type fakeLink struct {
	addr string

	mu       sync.Mutex
	handler  transport.Handler
	raw      transport.Handler
	open     bool
	detached bool
	sent     [][]byte
}

// emit delivers ev the way a real attempt would: nothing after a terminal
// event or a detach.
func (l *fakeLink) emit(ev transport.Event) {
	l.mu.Lock()
	h := l.handler
	switch {
	case ev.Kind == transport.EventOpened:
		l.open = true
	case ev.Kind.Terminal():
		l.open = false
		l.handler = nil
	}
	l.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// leak delivers ev even after a detach, like an event already in flight.
func (l *fakeLink) leak(ev transport.Event) {
	l.raw(ev)
}

func (l *fakeLink) Send(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return model.ErrNotConnected
	}
	l.sent = append(l.sent, payload)
	return nil
}

func (l *fakeLink) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = nil
	l.open = false
	l.detached = true
}

func (l *fakeLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}

func (l *fakeLink) Detached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.detached
}

type fakeFallback struct {
	polling chan time.Duration
	bodies  chan []byte
	errs    chan error

	mu        sync.Mutex
	readBody  []byte
	readErr   error
	createErr error
	creates   []model.TaskSpec
	cancels   []string
}

func newFakeFallback() *fakeFallback {
	return &fakeFallback{
		polling: make(chan time.Duration, 4),
		bodies:  make(chan []byte),
		errs:    make(chan error),
	}
}

func (f *fakeFallback) ReadTasks(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readBody, f.readErr
}

func (f *fakeFallback) CreateTask(ctx context.Context, spec model.TaskSpec) (model.CreatedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, spec)
	if f.createErr != nil {
		return model.CreatedTask{}, f.createErr
	}
	return model.CreatedTask{ID: "6f1c7c1e-2a4b-4d59-9c1d-8c0f4d0b6f11", Name: spec.Name, Status: model.StatusInProgress}, nil
}

func (f *fakeFallback) CancelTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	return nil
}

func (f *fakeFallback) Poll(ctx context.Context, interval time.Duration, onBody func([]byte), onErr func(error)) {
	f.polling <- interval
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-f.bodies:
			onBody(b)
		case err := <-f.errs:
			onErr(err)
		}
	}
}
