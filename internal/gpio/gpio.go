// Package gpio reads a probe sensor wired to a host GPIO line and exposes it
// as a homing endstop. The real line uses the Linux GPIO character device;
// the fake allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrNoTrigger = errors.New("no trigger on probe after full movement")

// Line is a requested input line.
type Line interface {
	// Value returns the raw level, 1 for active.
	Value() (int, error)
	Close() error
}

// Clock returns the current print time.
type Clock func() float64

// Endstop reports the line as triggered while it is active and latches the
// first rising edge seen while homing.
type Endstop struct {
	name  string
	clock Clock

	mu          sync.Mutex
	line        Line
	queryTime   float64
	homing      bool
	triggered   bool
	triggerTime float64
}

func NewEndstop(name string, line Line, clock Clock) *Endstop {
	return &Endstop{name: name, line: line, clock: clock}
}

func (e *Endstop) QueryEndstop(printTime float64) {
	e.mu.Lock()
	e.queryTime = printTime
	e.mu.Unlock()
}

// QueryEndstopWait samples the line once the query time has been reached.
func (e *Endstop) QueryEndstopWait() (bool, error) {
	e.mu.Lock()
	line := e.line
	e.mu.Unlock()

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s sensor: %w", e.name, err)
	}
	return v == 1, nil
}

func (e *Endstop) HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.homing = true
	e.triggered = false
	log.Debug().Str("endstop", e.name).Float64("print_time", printTime).Float64("rest_time", restTime).Int("sample_count", sampleCount).Msg("Endstop armed")
	return nil
}

// Edge records a rising edge observed at the current print time.
func (e *Endstop) Edge() {
	t := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.homing && !e.triggered {
		e.triggered = true
		e.triggerTime = t
	}
}

// HomeWait disarms the endstop and returns the trigger time.
func (e *Endstop) HomeWait(moveEndPrintTime float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.homing = false
	if !e.triggered {
		return 0, ErrNoTrigger
	}
	return e.triggerTime, nil
}

func (e *Endstop) HomePrepare() {}

func (e *Endstop) HomeFinalize() {}

func (e *Endstop) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line == nil {
		return nil
	}
	return e.line.Close()
}
