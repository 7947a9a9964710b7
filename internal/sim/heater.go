package sim

import (
	"fmt"
	"math"
	"sync"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

type HeaterConfig struct {
	Name         string
	Ambient      float64
	MaxRate      float64
	CoolingCoeff float64
}

// Heater is a first-order thermal model driven at a fixed rate toward its
// target and losing heat in proportion to the difference from ambient.
type Heater struct {
	cfg HeaterConfig

	mu       sync.Mutex
	temp     float64
	target   float64
	lastTime float64
	started  bool
	broken   bool
}

func NewHeater(cfg HeaterConfig) *Heater {
	return &Heater{cfg: cfg, temp: cfg.Ambient}
}

func (h *Heater) Name() string {
	return h.cfg.Name
}

func (h *Heater) advance(eventtime float64) {
	if !h.started {
		h.started = true
		h.lastTime = eventtime
		return
	}
	dt := eventtime - h.lastTime
	if dt <= 0 {
		return
	}
	h.lastTime = eventtime

	if !h.broken && h.temp < h.target {
		h.temp = math.Min(h.target, h.temp+h.cfg.MaxRate*dt)
	}
	h.temp -= h.cfg.CoolingCoeff * (h.temp - h.cfg.Ambient) * dt
}

// GetTemp advances the model to eventtime.
func (h *Heater) GetTemp(eventtime float64) (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advance(eventtime)
	return h.temp, h.target
}

func (h *Heater) SetTarget(target float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = target
}

// SetBroken stops the element from delivering heat.
func (h *Heater) SetBroken(broken bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broken = broken
}

// RegisterCommands installs SET_HEATER_TEMPERATURE HEATER=<name> TARGET=<temp>.
func (h *Heater) RegisterCommands(d *gcode.Dispatcher) error {
	return d.RegisterMux("SET_HEATER_TEMPERATURE", "HEATER", h.cfg.Name, func(gc *gcode.Command) error {
		target, err := gc.GetFloat("TARGET", 0)
		if err != nil {
			return err
		}
		if target < 0 {
			return fmt.Errorf("requested temperature (%.1f) out of range", target)
		}
		h.SetTarget(target)
		gc.RespondInfo(fmt.Sprintf("Heater %s target set to %.1f", h.cfg.Name, target))
		return nil
	}, "Sets a heater temperature")
}

func (h *Heater) Status() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]any{
		"temperature": h.temp,
		"target":      h.target,
	}
}
