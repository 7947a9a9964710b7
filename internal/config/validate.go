package config

import (
	"fmt"

	"github.com/thatsimonsguy/peripheral-controller/internal/fan"
	"github.com/thatsimonsguy/peripheral-controller/internal/heatercheck"
	"github.com/thatsimonsguy/peripheral-controller/internal/probe"
)

// check returns a problem description, or "" when the value is acceptable.
type check func(v float64) string

func minval(lo float64) check {
	return func(v float64) string {
		if v < lo {
			return fmt.Sprintf("must have minimum of %g", lo)
		}
		return ""
	}
}

func maxval(hi float64) check {
	return func(v float64) string {
		if v > hi {
			return fmt.Sprintf("must have maximum of %g", hi)
		}
		return ""
	}
}

func above(lo float64) check {
	return func(v float64) string {
		if v <= lo {
			return fmt.Sprintf("must be above %g", lo)
		}
		return ""
	}
}

func notzero() check {
	return func(v float64) string {
		if v == 0 {
			return "must not be zero"
		}
		return ""
	}
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// float returns *val or def and records a problem for every failed check.
func (v *validator) float(section, option string, val *float64, def float64, checks ...check) float64 {
	x := def
	if val != nil {
		x = *val
	}
	for _, c := range checks {
		if msg := c(x); msg != "" {
			v.addf("option '%s' in section '%s' %s", option, section, msg)
		}
	}
	return x
}

func (v *validator) required(section, option string, val *float64) float64 {
	if val == nil {
		v.addf("option '%s' in section '%s' must be specified", option, section)
		return 0
	}
	return *val
}

func boolOr(val *bool, def bool) bool {
	if val == nil {
		return def
	}
	return *val
}

func (v *validator) probe(f *ProbeFile) (*probe.Config, ProbeSensor) {
	name := stringOr(f.Name, "bltouch")
	cfg := &probe.Config{
		Name:          name,
		ZOffset:       v.required(name, "z_offset", f.ZOffset),
		PinMoveTime:   v.float(name, "pin_move_time", f.PinMoveTime, 1.0),
		TestSensorPin: boolOr(f.TestSensorPin, true),
	}
	sensor := ProbeSensor{Chip: stringOr(f.SensorChip, "gpiochip0"), Pin: f.SensorPin}
	if sensor.Pin != nil && *sensor.Pin < 0 {
		v.addf("option 'sensor_pin' in section '%s' must have minimum of 0", name)
	}
	return cfg, sensor
}

func (v *validator) fans(files []FanFile) []fan.Config {
	seen := map[string]bool{}
	var fans []fan.Config
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = fan.PrimaryName
		}
		section := "fan " + name
		if seen[name] {
			v.addf("section '%s' is defined more than once", section)
		}
		seen[name] = true

		maxPower := v.float(section, "max_power", f.MaxPower, 1.0, above(0), maxval(1))
		fans = append(fans, fan.Config{
			Name:          name,
			MaxPower:      maxPower,
			KickStartTime: v.float(section, "kick_start_time", f.KickStartTime, 0.1, minval(0)),
			OffBelow:      v.float(section, "off_below", f.OffBelow, 0, minval(0), maxval(1)),
			CycleTime:     v.float(section, "cycle_time", f.CycleTime, 0.010, above(0)),
			HardwarePWM:   boolOr(f.HardwarePWM, false),
			ShutdownSpeed: v.float(section, "shutdown_speed", f.ShutdownSpeed, 0, minval(0), maxval(1)),
		})
	}
	return fans
}

func (v *validator) heaters(files []HeaterFile) []SimHeater {
	seen := map[string]bool{}
	var heaters []SimHeater
	for _, f := range files {
		if f.Name == "" {
			v.addf("heater entry is missing a name")
			continue
		}
		section := "heater " + f.Name
		if seen[f.Name] {
			v.addf("section '%s' is defined more than once", section)
			continue
		}
		seen[f.Name] = true
		heaters = append(heaters, SimHeater{
			Name:         f.Name,
			Ambient:      v.float(section, "ambient", f.Ambient, 25),
			MaxRate:      v.float(section, "max_rate", f.MaxRate, 2, above(0)),
			CoolingCoeff: v.float(section, "cooling_coeff", f.CoolingCoeff, 0.01, minval(0)),
		})
	}
	return heaters
}

func (v *validator) heaterChecks(files []HeaterCheckFile, heaters []SimHeater) []heatercheck.Config {
	known := map[string]bool{}
	for _, h := range heaters {
		known[h.Name] = true
	}

	seen := map[string]bool{}
	var checks []heatercheck.Config
	for _, f := range files {
		if f.Heater == "" {
			v.addf("verify_heater entry is missing a heater name")
			continue
		}
		section := "verify_heater " + f.Heater
		if seen[f.Heater] {
			v.addf("section '%s' is defined more than once", section)
			continue
		}
		seen[f.Heater] = true
		if !known[f.Heater] {
			v.addf("section '%s' refers to unknown heater '%s'", section, f.Heater)
		}
		checks = append(checks, heatercheck.Config{
			HeaterName:    f.Heater,
			Hysteresis:    v.float(section, "hysteresis", f.Hysteresis, 5, minval(0)),
			MaxError:      v.float(section, "max_error", f.MaxError, 120, minval(0)),
			HeatingGain:   v.float(section, "heating_gain", f.HeatingGain, 2, notzero()),
			CheckGainTime: v.float(section, "check_gain_time", f.CheckGainTime, heatercheck.DefaultCheckGainTime(f.Heater), minval(1)),
		})
	}
	return checks
}
