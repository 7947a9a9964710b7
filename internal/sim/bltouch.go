package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

const (
	signalPeriod   = 0.025600
	pulseTolerance = 0.000050
)

var ErrNoContact = errors.New("no trigger on probe after full movement")

// pulse widths understood by the emulated probe, in seconds
var probePulses = map[string]float64{
	"pin_down":   0.000700,
	"touch_mode": 0.001200,
	"pin_up":     0.001500,
	"self_test":  0.001800,
	"reset":      0.002200,
}

// ProbeFaults selects misbehaviour of the emulated probe.
type ProbeFaults struct {
	// Stuck raises the alarm on every deploy.
	Stuck bool
	// NoTouchMode ignores touch_mode, as some clones do.
	NoTouchMode bool
	// ResetBroken ignores reset.
	ResetBroken bool
}

// Probe emulates a smart probe: it decodes command pulses from its control
// PWM and drives its sensor line accordingly.
type Probe struct {
	mu        sync.Mutex
	faults    ProbeFaults
	deployed  bool
	touchMode bool
	alarm     bool
	bed       bool
	inReach   bool
	homing    bool
	commands  []string
	trigger   float64
	triggered bool
}

// NewProbe attaches the emulator to the control pin.
func NewProbe(control *PWM, faults ProbeFaults) *Probe {
	p := &Probe{faults: faults}
	control.OnEvent(p.handlePulse)
	return p
}

func decodePulse(value float64) (string, bool) {
	width := value * signalPeriod
	for name, w := range probePulses {
		if math.Abs(w-width) <= pulseTolerance {
			return name, true
		}
	}
	return "", false
}

func (p *Probe) handlePulse(ev Event) {
	if ev.Value == 0 {
		return
	}
	cmd, ok := decodePulse(ev.Value)
	if !ok {
		log.Warn().Float64("value", ev.Value).Msg("Simulated probe ignored unknown pulse")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, cmd)
	switch cmd {
	case "pin_down":
		if p.faults.Stuck {
			p.alarm = true
			return
		}
		p.deployed = true
		p.touchMode = false
	case "pin_up":
		p.deployed = false
		p.touchMode = false
	case "touch_mode":
		if !p.faults.NoTouchMode {
			p.touchMode = true
		}
	case "reset":
		if !p.faults.ResetBroken {
			p.alarm = false
		}
	case "self_test":
		p.deployed = false
	}
	if p.homing && p.sensorLocked() && !p.triggered {
		p.triggered = true
		p.trigger = ev.PrintTime
	}
}

func (p *Probe) sensorLocked() bool {
	return p.alarm || p.touchMode || (p.deployed && p.bed)
}

// Triggered reports the current sensor level.
func (p *Probe) Triggered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sensorLocked()
}

// RaiseAlarm latches the alarm state, as after a failed deploy.
func (p *Probe) RaiseAlarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alarm = true
}

func (p *Probe) SetFaults(faults ProbeFaults) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = faults
}

// SetBedContact places the bed against the probe tip (true) or away from it.
func (p *Probe) SetBedContact(contact bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bed = contact
}

// SetBedInReach places the bed where the next probing move touches it. The
// sensor stays quiet until that move runs.
func (p *Probe) SetBedInReach(inReach bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inReach = inReach
}

// RegisterCommands installs SET_PROBE_BED REACH=<0|1>.
func (p *Probe) RegisterCommands(d *gcode.Dispatcher) error {
	return d.Register("SET_PROBE_BED", func(gc *gcode.Command) error {
		reach := gc.Get("REACH", "1")
		switch reach {
		case "0", "1":
		default:
			return fmt.Errorf("unable to parse '%s' as a bed position for REACH", reach)
		}
		p.SetBedInReach(reach == "1")
		gc.RespondInfo("Simulated bed in reach " + reach)
		return nil
	}, "Places the simulated bed within reach of the probing move")
}

// Commands returns every decoded command in order.
func (p *Probe) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *Probe) Deployed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deployed
}

func (p *Probe) QueryEndstop(printTime float64) {}

func (p *Probe) QueryEndstopWait() (bool, error) {
	return p.Triggered(), nil
}

func (p *Probe) HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.homing = true
	p.triggered = false
	return nil
}

// HomeWait reports the move end as the trigger time when the deployed pin
// touched the bed during the move.
func (p *Probe) HomeWait(moveEndPrintTime float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.homing = false
	if p.triggered {
		return p.trigger, nil
	}
	if p.deployed && (p.bed || p.inReach) {
		return moveEndPrintTime, nil
	}
	return 0, ErrNoContact
}

func (p *Probe) HomePrepare() {}

func (p *Probe) HomeFinalize() {}
