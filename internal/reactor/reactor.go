// Package reactor runs timer callbacks and queued work on a single goroutine.
// Callbacks receive the event time in seconds and return their next wake time.
package reactor

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	NOW   = 0.0
	NEVER = 9999999999999999.0
)

var ErrClosed = errors.New("reactor: reactor closed")

// maxIdle bounds how long Run sleeps between timer checks.
const maxIdle = time.Second

// TimerCallback is invoked when a timer fires. Returning NEVER disables the timer.
type TimerCallback func(eventtime float64) float64

type Timer struct {
	callback TimerCallback
	waketime float64
}

// Waketime returns the time the timer is next due.
func (t *Timer) Waketime() float64 {
	return t.waketime
}

type call struct {
	fn   func(eventtime float64) error
	done chan error
}

type Reactor struct {
	mu     sync.Mutex
	timers []*Timer

	start   time.Time
	calls   chan call
	wake    chan struct{}
	done    chan struct{}
	endOnce sync.Once
}

func New() *Reactor {
	return &Reactor{
		start: time.Now(),
		calls: make(chan call, 16),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Monotonic returns seconds elapsed on the reactor clock.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.start).Seconds() + 1.0
}

func (r *Reactor) RegisterTimer(cb TimerCallback, waketime float64) *Timer {
	t := &Timer{callback: cb, waketime: waketime}
	r.mu.Lock()
	r.timers = append(r.timers, t)
	r.mu.Unlock()
	r.poke()
	return t
}

func (r *Reactor) UpdateTimer(t *Timer, waketime float64) {
	r.mu.Lock()
	t.waketime = waketime
	r.mu.Unlock()
	r.poke()
}

// RunDue fires every timer due at eventtime once and returns the earliest
// remaining wake time.
func (r *Reactor) RunDue(eventtime float64) float64 {
	r.mu.Lock()
	snapshot := make([]*Timer, len(r.timers))
	copy(snapshot, r.timers)
	r.mu.Unlock()

	for _, t := range snapshot {
		r.mu.Lock()
		due := t.waketime <= eventtime
		if due {
			t.waketime = NEVER
		}
		r.mu.Unlock()
		if !due {
			continue
		}
		next := t.callback(eventtime)
		r.mu.Lock()
		t.waketime = next
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := NEVER
	for _, t := range r.timers {
		if t.waketime < next {
			next = t.waketime
		}
	}
	return next
}

// Call runs fn on the reactor goroutine and waits for it to return.
func (r *Reactor) Call(ctx context.Context, fn func(eventtime float64) error) error {
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case r.calls <- c:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-r.done:
		// fn may have finished just before the reactor ended
		select {
		case err := <-c.done:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndAfter stops Run once the current callback or call has returned.
func (r *Reactor) EndAfter() {
	r.RegisterTimer(func(float64) float64 {
		r.End()
		return NEVER
	}, NOW)
}

// Run services timers and queued calls until End is called or ctx is done.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		next := r.RunDue(r.Monotonic())

		wait := time.Duration((next - r.Monotonic()) * float64(time.Second))
		if wait < 0 {
			wait = 0
		}
		if wait > maxIdle {
			wait = maxIdle
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.done:
			timer.Stop()
			return nil
		case c := <-r.calls:
			c.done <- c.fn(r.Monotonic())
		case <-r.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// End stops Run. Safe to call more than once.
func (r *Reactor) End() {
	r.endOnce.Do(func() {
		close(r.done)
	})
}

func (r *Reactor) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
