package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("breaker is open")

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		OpenTimeout:      15 * time.Second,
		HalfOpenMaxReq:   2,
	}
}

func NormalizeBreakerConfig(cfg BreakerConfig) BreakerConfig {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = defaults.HalfOpenMaxReq
	}
	return cfg
}

// Breaker trips after a run of consecutive failures and lets a bounded
// number of probe requests through once the open timeout elapses.
type Breaker struct {
	mu sync.Mutex

	cfg BreakerConfig
	now func() time.Time

	state          BreakerState
	failures       int
	openedAt       time.Time
	probeInFlight  int
	probeSuccesses int
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:   NormalizeBreakerConfig(cfg),
		state: BreakerClosed,
		now:   time.Now,
	}
}

// Allow reports whether a request may proceed. It returns ErrBreakerOpen
// when the breaker is open or all half-open probe slots are taken.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = 0
		b.probeSuccesses = 0
	}

	if b.state == BreakerHalfOpen {
		if b.probeInFlight >= b.cfg.HalfOpenMaxReq {
			return ErrBreakerOpen
		}
		b.probeInFlight++
	}

	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		if b.probeInFlight > 0 {
			b.probeInFlight--
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.HalfOpenMaxReq && b.probeInFlight == 0 {
			b.state = BreakerClosed
			b.failures = 0
			b.openedAt = time.Time{}
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case BreakerHalfOpen:
		if b.probeInFlight > 0 {
			b.probeInFlight--
		}
		b.trip()
	case BreakerOpen:
		b.openedAt = b.now()
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.probeInFlight = 0
	b.probeSuccesses = 0
}
