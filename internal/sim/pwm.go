package sim

import (
	"fmt"
	"sync"
)

type Event struct {
	PrintTime float64
	Value     float64
}

// PWM records scheduled duty changes and forwards them to a listener.
type PWM struct {
	Name string

	mu            sync.Mutex
	maxDuration   float64
	cycleTime     float64
	hardwarePWM   bool
	startValue    float64
	shutdownValue float64
	events        []Event
	listener      func(Event)
	shutdown      bool
}

func NewPWM(name string) *PWM {
	return &PWM{Name: name}
}

func (p *PWM) SetupMaxDuration(maxDuration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxDuration = maxDuration
}

func (p *PWM) SetupCycleTime(cycleTime float64, hardwarePWM bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycleTime = cycleTime
	p.hardwarePWM = hardwarePWM
}

func (p *PWM) SetupStartValue(startValue, shutdownValue float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startValue = startValue
	p.shutdownValue = shutdownValue
}

func (p *PWM) CycleTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycleTime
}

func (p *PWM) ShutdownValue() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdownValue
}

// SetPWM rejects a change scheduled before the previous one, and every
// change once the output is shut down.
func (p *PWM) SetPWM(printTime, value float64) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return fmt.Errorf("pwm %s: output is shut down", p.Name)
	}
	if n := len(p.events); n > 0 && printTime < p.events[n-1].PrintTime {
		last := p.events[n-1].PrintTime
		p.mu.Unlock()
		return fmt.Errorf("pwm %s: time %.6f precedes scheduled %.6f", p.Name, printTime, last)
	}
	if value < 0 || value > 1 {
		p.mu.Unlock()
		return fmt.Errorf("pwm %s: value %.4f out of range", p.Name, value)
	}
	ev := Event{PrintTime: printTime, Value: value}
	p.events = append(p.events, ev)
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener(ev)
	}
	return nil
}

// Shutdown drives the output to its shutdown value at once, as the MCU does
// when it enters shutdown. Later calls are no-ops.
func (p *PWM) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	var printTime float64
	if n := len(p.events); n > 0 {
		printTime = p.events[n-1].PrintTime
	}
	ev := Event{PrintTime: printTime, Value: p.shutdownValue}
	p.events = append(p.events, ev)
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener(ev)
	}
}

func (p *PWM) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// OnEvent installs the listener receiving every accepted change.
func (p *PWM) OnEvent(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

func (p *PWM) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Value is the most recently scheduled duty.
func (p *PWM) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return p.startValue
	}
	return p.events[len(p.events)-1].Value
}
