// Package sim provides simulated collaborators for running the controller
// without an MCU: a move queue, PWM outputs, a smart probe and heaters.
package sim

import (
	"sync"
)

// Toolhead is a move queue whose print time only advances through dwells.
type Toolhead struct {
	mu        sync.Mutex
	printTime float64
	flushed   float64
	flushes   int
}

func NewToolhead(start float64) *Toolhead {
	return &Toolhead{printTime: start, flushed: start}
}

func (t *Toolhead) LastMoveTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.printTime
}

func (t *Toolhead) Dwell(delay float64) {
	if delay <= 0 {
		return
	}
	t.mu.Lock()
	t.printTime += delay
	t.mu.Unlock()
}

// WaitMoves marks every queued move as executed.
func (t *Toolhead) WaitMoves() error {
	t.mu.Lock()
	t.flushed = t.printTime
	t.flushes++
	t.mu.Unlock()
	return nil
}

// RegisterLookaheadCallback runs cb at the end of the queued moves.
func (t *Toolhead) RegisterLookaheadCallback(cb func(printTime float64)) {
	cb(t.LastMoveTime())
}

// Now is the print time of the last executed move.
func (t *Toolhead) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushed
}

func (t *Toolhead) Flushes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushes
}
