// Package supervisor owns the connection lifecycle. It keeps at most one
// transport active, retries the primary with backoff, gives up on it for good
// once the retry budget is spent and from then on keeps the replica fresh by
// polling the fallback.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/livesync/pkg/backoff"
	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/normalize"
	"github.com/astromechza/livesync/pkg/replica"
	"github.com/astromechza/livesync/pkg/transport"
)

const (
	DefaultRetryBudget  = 10
	DefaultPollInterval = 5 * time.Second
	DefaultHistorySize  = 256
)

// Opener starts primary attempts. *transport.Primary is the real one.
type Opener interface {
	Open(addr string, h transport.Handler) transport.Link
}

// Fallback is the request/response adapter used once Offline.
// *transport.Fallback is the real one.
type Fallback interface {
	ReadTasks(ctx context.Context) ([]byte, error)
	CreateTask(ctx context.Context, spec model.TaskSpec) (model.CreatedTask, error)
	CancelTask(ctx context.Context, id string) error
	Poll(ctx context.Context, interval time.Duration, onBody func([]byte), onErr func(error))
}

type Config struct {
	// Addr is the websocket url of the live view.
	Addr         string
	RetryBudget  int
	PollInterval time.Duration
	Backoff      *backoff.Policy
	Clock        Clock
	HistorySize  int
}

type Supervisor struct {
	cfg      Config
	primary  Opener
	fallback Fallback
	replica  *replica.Replica

	inbox chan func()
	done  chan struct{}

	// Owned by the loop goroutine.
	runCtx    context.Context
	state     State
	retries   int
	delays    *backoff.Sequence
	link      transport.Link
	linkSeq   uint64
	timer     Timer
	timerSeq  uint64
	pageSeen  bool
	replacing bool
	abandoned bool
	stopPoll  context.CancelFunc

	// Published copies for readers on other goroutines.
	mu          sync.RWMutex
	viewState   State
	viewRetries int
	history     []Transition
	hooks       []func(Transition)
}

func New(cfg Config, primary Opener, fallback Fallback, rep *replica.Replica) *Supervisor {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = DefaultRetryBudget
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Supervisor{
		cfg:      cfg,
		primary:  primary,
		fallback: fallback,
		replica:  rep,
		delays:   cfg.Backoff.Sequence(),
		inbox:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then releases whatever
// transport is active. It must be called exactly once.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)
	s.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			s.release()
			slog.Info("stopped supervisor")
			return nil
		case f := <-s.inbox:
			f()
		}
	}
}

// Start begins connecting. It has no effect unless Disconnected.
func (s *Supervisor) Start() {
	s.post(context.Background(), s.start)
}

// Stop releases the active transport and returns to Disconnected. A
// supervisor that already went Offline goes straight back to Offline on the
// next Start.
func (s *Supervisor) Stop() {
	s.post(context.Background(), func() {
		if s.state == Disconnected {
			return
		}
		s.release()
		s.transition(Disconnected, "stopped")
	})
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewState
}

func (s *Supervisor) Retries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewRetries
}

// History returns the recorded transitions, oldest first.
func (s *Supervisor) History() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transition(nil), s.history...)
}

// OnTransition registers fn to run on the loop goroutine after every
// transition.
func (s *Supervisor) OnTransition(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// post queues f for the loop. It reports false if ctx ended or the loop has
// exited first.
func (s *Supervisor) post(ctx context.Context, f func()) bool {
	select {
	case s.inbox <- f:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// call runs f on the loop and waits for it to finish.
func (s *Supervisor) call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !s.post(ctx, func() {
		defer close(finished)
		f()
	}) {
		return errStopped(ctx)
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errStopped(ctx)
	}
}

func errStopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("supervisor is not running")
}

func (s *Supervisor) start() {
	if s.state != Disconnected {
		return
	}
	if s.abandoned {
		s.goOffline("primary abandoned earlier")
		return
	}
	s.connect("started")
}

func (s *Supervisor) connect(cause string) {
	s.transition(Connecting, cause)
	s.linkSeq++
	seq := s.linkSeq
	slog.Info("opening primary", "addr", s.cfg.Addr, "retries", s.retries)
	s.link = s.primary.Open(s.cfg.Addr, func(ev transport.Event) {
		s.post(context.Background(), func() { s.onPrimary(seq, ev) })
	})
}

func (s *Supervisor) onPrimary(seq uint64, ev transport.Event) {
	if seq != s.linkSeq || s.link == nil {
		slog.Debug("dropping event from superseded attempt", "kind", ev.Kind, "state", s.state)
		return
	}

	switch ev.Kind {
	case transport.EventOpened:
		s.retries = 0
		s.delays.Reset()
		s.pageSeen = false
		s.replacing = false
		s.transition(Connected, "opened")
	case transport.EventMessage:
		u, err := normalize.Primary(ev.Payload)
		if err != nil {
			slog.Warn("dropping primary payload", "err", err)
			return
		}
		// The page every attempt opens with is not a replacement; only a
		// later full page announces that the server is about to hand over.
		s.replacing = u.Kind == model.KindFullReplica && s.pageSeen
		if u.Kind == model.KindFullReplica {
			s.pageSeen = true
		}
		change := s.replica.Apply(u)
		slog.Debug("applied primary update", "kind", u.Kind, "regions", change.Regions)
	case transport.EventClosed, transport.EventErrored:
		s.link = nil
		s.onPrimaryEnded(ev)
	}
}

func (s *Supervisor) onPrimaryEnded(ev transport.Event) {
	attrs := []any{"kind", ev.Kind, "state", s.state}
	if ev.Err != nil {
		attrs = append(attrs, "code", ev.Err.Code, "err", ev.Err)
	}

	if s.replacing {
		s.replacing = false
		slog.Info("primary closed after full replacement", attrs...)
		s.transition(Disconnected, "replaced")
		s.connect("fresh context")
		return
	}

	s.retries++
	slog.Warn("primary ended", append(attrs, "retries", s.retries, "budget", s.cfg.RetryBudget)...)
	if s.retries >= s.cfg.RetryBudget {
		s.abandoned = true
		s.goOffline("retry budget exhausted")
		return
	}

	delay := s.delays.NextBackOff()
	s.transition(Reconnecting, ev.Kind.String())
	s.timerSeq++
	seq := s.timerSeq
	s.timer = s.cfg.Clock.AfterFunc(delay, func() {
		s.post(context.Background(), func() { s.onTimer(seq) })
	})
	slog.Info("scheduled reconnect", "delay", delay, "retries", s.retries)
}

func (s *Supervisor) onTimer(seq uint64) {
	if seq != s.timerSeq || s.timer == nil || s.state != Reconnecting {
		return
	}
	s.timer = nil
	s.connect("backoff elapsed")
}

func (s *Supervisor) goOffline(cause string) {
	s.release()
	s.transition(Offline, cause)

	ctx, cancel := context.WithCancel(s.runCtx)
	s.stopPoll = cancel
	go s.fallback.Poll(ctx, s.cfg.PollInterval, func(body []byte) {
		s.post(ctx, func() { s.onFallbackBody(body) })
	}, func(err error) {
		slog.Warn("fallback read failed", "err", err)
	})
}

func (s *Supervisor) onFallbackBody(body []byte) {
	if s.state != Offline {
		return
	}
	u, err := normalize.Fallback(body)
	if err != nil {
		slog.Warn("dropping fallback payload", "err", err)
		return
	}
	change := s.replica.Apply(u)
	slog.Debug("applied fallback update", "regions", change.Regions)
}

// release detaches the primary, cancels any pending reconnect and ends the
// fallback loop.
func (s *Supervisor) release() {
	if s.link != nil {
		s.link.Detach()
		s.link = nil
	}
	s.linkSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.pageSeen = false
	s.replacing = false
}

func (s *Supervisor) transition(to State, cause string) {
	tr := Transition{From: s.state, To: to, Cause: cause, Retries: s.retries, At: s.cfg.Clock.Now()}
	s.state = to

	s.mu.Lock()
	s.viewState = to
	s.viewRetries = s.retries
	s.history = append(s.history, tr)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append([]Transition(nil), s.history[over:]...)
	}
	hooks := append([]func(Transition){}, s.hooks...)
	s.mu.Unlock()

	slog.Info("connection state changed", "from", tr.From, "to", to, "cause", cause, "retries", s.retries)
	for _, fn := range hooks {
		fn(tr)
	}
}
