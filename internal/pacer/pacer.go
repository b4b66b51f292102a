// Package pacer implements a retrying, adaptively-paced call wrapper, the
// way rclone's lib/pacer package paces calls to a remote API: every call is
// wrapped in Pacer.Call, which retries on a transient failure with
// exponentially decaying/growing sleep between attempts, up to a retry
// budget.
package pacer

import (
	"context"
	"sync"
	"time"
)

// State is the sleep/retry state threaded through the Calculator.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
}

// Calculator computes the next sleep duration given the current state.
type Calculator interface {
	Calculate(State) time.Duration
}

// Default is the calculator rclone uses: sleep decays toward minSleep on
// success and grows toward maxSleep on failure, by a configurable
// constant on each side.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// Option configures a Default calculator or a Pacer.
type Option func(any)

// MinSleep sets the minimum sleep between calls.
func MinSleep(d time.Duration) Option {
	return func(o any) {
		if c, ok := o.(*Default); ok {
			c.minSleep = d
		}
	}
}

// MaxSleep sets the maximum sleep between calls.
func MaxSleep(d time.Duration) Option {
	return func(o any) {
		if c, ok := o.(*Default); ok {
			c.maxSleep = d
		}
	}
}

// DecayConstant sets how aggressively the sleep time shrinks after a
// successful call; bigger means slower decay.
func DecayConstant(n uint) Option {
	return func(o any) {
		if c, ok := o.(*Default); ok {
			c.decayConstant = n
		}
	}
}

// AttackConstant sets how aggressively the sleep time grows after a
// retryable failure.
func AttackConstant(n uint) Option {
	return func(o any) {
		if c, ok := o.(*Default); ok {
			c.attackConstant = n
		}
	}
}

// NewDefault creates a Default calculator with rclone-style defaults: 10ms
// minimum sleep, 2s maximum sleep, decay constant 2, attack constant 1.
func NewDefault(opts ...Option) *Default {
	c := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate returns the next sleep time. A failed call (ConsecutiveRetries
// > 0) grows the sleep time by 2^attackConstant; a successful call decays
// it by a factor of (2^decayConstant-1)/2^decayConstant. The result is
// clamped to [minSleep, maxSleep].
func (c *Default) Calculate(s State) time.Duration {
	next := s.SleepTime
	if s.ConsecutiveRetries > 0 {
		next = next << c.attackConstant
		if next <= 0 {
			next = c.maxSleep
		}
	} else {
		shrink := next >> c.decayConstant
		next = next - shrink
	}
	if next < c.minSleep {
		next = c.minSleep
	}
	if next > c.maxSleep {
		next = c.maxSleep
	}
	return next
}

// Retries is the default low-level retry budget, matching rclone's own
// --low-level-retries default.
const Retries = 20

// Pacer paces retrying calls. A Pacer is safe for concurrent use: its
// mutex guards only the shared backoff state, so concurrent Calls are not
// serialized and sleep independently of each other.
type Pacer struct {
	mu         sync.Mutex
	calculator Calculator
	retries    int
	state      State
}

// New creates a Pacer with the given calculator (defaults to NewDefault())
// and retry budget (defaults to Retries).
func New(calculator Calculator, retries int) *Pacer {
	if calculator == nil {
		calculator = NewDefault()
	}
	if retries <= 0 {
		retries = Retries
	}
	return &Pacer{calculator: calculator, retries: retries}
}

func (p *Pacer) sleepTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.SleepTime = p.calculator.Calculate(p.state)
	return p.state.SleepTime
}

func (p *Pacer) recordResult(retry bool) {
	p.mu.Lock()
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.mu.Unlock()
}

// Call invokes fn, retrying while fn returns (true, err), sleeping an
// adaptively-paced interval between attempts, until fn returns (false, _)
// or the retry budget is exhausted. ctx cancellation aborts the wait
// between retries immediately.
func (p *Pacer) Call(ctx context.Context, fn func() (bool, error)) error {
	var err error
	var retry bool
	for attempt := 0; attempt < p.retries; attempt++ {
		retry, err = fn()
		p.recordResult(retry)
		if !retry {
			return err
		}
		select {
		case <-time.After(p.sleepTime()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CallNoRetry invokes fn exactly once, ignoring the returned retry flag.
func (p *Pacer) CallNoRetry(fn func() (bool, error)) error {
	_, err := fn()
	return err
}
