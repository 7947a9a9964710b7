package probe

import (
	"sort"
	"strings"
)

const (
	// SignalPeriod is the PWM cycle the probe decodes command pulses against.
	SignalPeriod = 0.025600
	MinCmdTime   = 4 * SignalPeriod

	// TestTime is the minimum spacing between wiring self-tests.
	TestTime = 5 * 60.0

	EndstopRestTime    = .001
	EndstopSampleTime  = .000015
	EndstopSampleCount = 4
)

// Command is one of the pulse-coded probe commands.
type Command int

const (
	CmdNone Command = iota
	CmdPinDown
	CmdTouchMode
	CmdPinUp
	CmdSelfTest
	CmdReset
)

// pulse widths in seconds
var commandPulse = map[Command]float64{
	CmdNone:      0.0,
	CmdPinDown:   0.000700,
	CmdTouchMode: 0.001200,
	CmdPinUp:     0.001500,
	CmdSelfTest:  0.001800,
	CmdReset:     0.002200,
}

var commandNames = map[Command]string{
	CmdNone:      "none",
	CmdPinDown:   "pin_down",
	CmdTouchMode: "touch_mode",
	CmdPinUp:     "pin_up",
	CmdSelfTest:  "self_test",
	CmdReset:     "reset",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// PulseWidth returns the pulse length that encodes the command.
func (c Command) PulseWidth() float64 {
	return commandPulse[c]
}

// Ratio returns the PWM duty that encodes the command.
func (c Command) Ratio() float64 {
	return commandPulse[c] / SignalPeriod
}

// ParseCommand maps a command name to its Command. The terminator is not
// addressable by name.
func ParseCommand(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for cmd, n := range commandNames {
		if cmd != CmdNone && n == name {
			return cmd, true
		}
	}
	return CmdNone, false
}

// CommandNames returns the sorted names of all sendable commands.
func CommandNames() []string {
	names := make([]string, 0, len(commandNames)-1)
	for cmd, n := range commandNames {
		if cmd != CmdNone {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
