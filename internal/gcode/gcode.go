// Package gcode routes named commands with key/value parameters to the
// components that registered them.
package gcode

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrUnknownCommand = errors.New("unknown command")

// Handler runs one command invocation.
type Handler func(cmd *Command) error

// Command is a single invocation of a registered command.
type Command struct {
	Name   string
	Params map[string]string

	responses []string
}

func NewCommand(name string, params map[string]string) *Command {
	normalized := make(map[string]string, len(params))
	for k, v := range params {
		normalized[strings.ToUpper(k)] = v
	}
	return &Command{Name: strings.ToUpper(name), Params: normalized}
}

// Get returns the parameter or def when it is absent.
func (c *Command) Get(name, def string) string {
	if v, ok := c.Params[strings.ToUpper(name)]; ok {
		return v
	}
	return def
}

func (c *Command) GetFloat(name string, def float64) (float64, error) {
	raw, ok := c.Params[strings.ToUpper(name)]
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse '%s' as a float for %s", raw, name)
	}
	return v, nil
}

// RespondInfo queues an informational line for the caller.
func (c *Command) RespondInfo(msg string) {
	c.responses = append(c.responses, msg)
}

func (c *Command) Responses() []string {
	return c.responses
}

type entry struct {
	handler Handler
	desc    string
}

type muxEntry struct {
	key    string
	values map[string]entry
}

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]entry
	mux      map[string]*muxEntry
	restart  []func(printTime float64)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]entry),
		mux:      make(map[string]*muxEntry),
	}
}

func (d *Dispatcher) Register(name string, h Handler, desc string) error {
	name = strings.ToUpper(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	if _, exists := d.mux[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	d.handlers[name] = entry{handler: h, desc: desc}
	return nil
}

// RegisterMux registers h for invocations of name whose key parameter equals value.
func (d *Dispatcher) RegisterMux(name, key, value string, h Handler, desc string) error {
	name = strings.ToUpper(name)
	key = strings.ToUpper(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	m, ok := d.mux[name]
	if !ok {
		m = &muxEntry{key: key, values: make(map[string]entry)}
		d.mux[name] = m
	}
	if m.key != key {
		return fmt.Errorf("mux command %s may have only one key (%s)", name, m.key)
	}
	if _, exists := m.values[value]; exists {
		return fmt.Errorf("mux command %s %s=%s already registered", name, key, value)
	}
	m.values[value] = entry{handler: h, desc: desc}
	return nil
}

// OnRequestRestart registers h to run when a restart is requested, with the
// print time the restart takes effect at.
func (d *Dispatcher) OnRequestRestart(h func(printTime float64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restart = append(d.restart, h)
}

// RequestRestart runs the restart handlers in registration order.
func (d *Dispatcher) RequestRestart(printTime float64) {
	d.mu.RLock()
	handlers := append([]func(float64){}, d.restart...)
	d.mu.RUnlock()

	log.Info().Float64("print_time", printTime).Int("handlers", len(handlers)).Msg("Restart requested")
	for _, h := range handlers {
		h(printTime)
	}
}

// Run executes the command and returns its response lines.
func (d *Dispatcher) Run(name string, params map[string]string) ([]string, error) {
	cmd := NewCommand(name, params)
	h, err := d.lookup(cmd)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("command", cmd.Name).Interface("params", cmd.Params).Msg("Running command")
	if err := h(cmd); err != nil {
		return cmd.Responses(), err
	}
	return cmd.Responses(), nil
}

func (d *Dispatcher) lookup(cmd *Command) (Handler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if e, ok := d.handlers[cmd.Name]; ok {
		return e.handler, nil
	}
	m, ok := d.mux[cmd.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	value := cmd.Get(m.key, "")
	e, ok := m.values[value]
	if !ok {
		return nil, fmt.Errorf("the value '%s' is not valid for %s", value, m.key)
	}
	return e.handler, nil
}

// Help returns command names mapped to their descriptions.
func (d *Dispatcher) Help() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	help := make(map[string]string)
	for name, e := range d.handlers {
		help[name] = e.desc
	}
	for name, m := range d.mux {
		keys := make([]string, 0, len(m.values))
		for v := range m.values {
			keys = append(keys, v)
		}
		sort.Strings(keys)
		help[name] = fmt.Sprintf("%s (%s=%s)", m.values[keys[0]].desc, m.key, strings.Join(keys, "|"))
	}
	return help
}
