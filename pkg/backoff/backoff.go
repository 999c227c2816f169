// Package backoff computes reconnect delays for the primary transport.
package backoff

import (
	"math/rand"
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff"
)

const (
	DefaultBase   = time.Second
	DefaultCap    = 30 * time.Second
	DefaultJitter = time.Second
)

// Policy computes min(base*2^attempt, cap) plus a uniform jitter in
// [0, jitter). The same random source always yields the same delays.
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// New builds a policy. A nil source seeds from the clock.
func New(base, cap, jitter time.Duration, src rand.Source) *Policy {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if cap < base {
		cap = base
	}
	return &Policy{Base: base, Cap: cap, Jitter: jitter, rnd: rand.New(src)}
}

func Default() *Policy {
	return New(DefaultBase, DefaultCap, DefaultJitter, nil)
}

// Exponential is the deterministic part of the delay for an attempt.
func (p *Policy) Exponential(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		if d >= p.Cap || d > p.Cap/2 {
			return p.Cap
		}
		d *= 2
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Delay returns the wait before the retry that follows the given number of
// prior attempts.
func (p *Policy) Delay(attempt int) time.Duration {
	return p.Exponential(attempt) + p.jitter()
}

func (p *Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rnd.Int63n(int64(p.Jitter)))
}

// Sequence walks a policy one attempt at a time and satisfies the
// cenkalti/backoff BackOff interface. It is not safe for concurrent use.
type Sequence struct {
	policy  *Policy
	attempt int
}

var _ cbackoff.BackOff = (*Sequence)(nil)

func (p *Policy) Sequence() *Sequence {
	return &Sequence{policy: p}
}

func (s *Sequence) NextBackOff() time.Duration {
	d := s.policy.Delay(s.attempt)
	s.attempt++
	return d
}

func (s *Sequence) Reset() {
	s.attempt = 0
}
