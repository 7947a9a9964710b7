package shutdown

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/datadog"
	"github.com/thatsimonsguy/peripheral-controller/internal/mqtt"
)

type Journal interface {
	RecordFault(source, message string) error
}

type Notifier interface {
	Send(title, message string) error
}

// Halter stops the scheduler once the shutdown has been handled.
type Halter interface {
	End()
}

// Deps are all optional.
type Deps struct {
	Journal   Journal
	Publisher mqtt.Publisher
	Notifier  Notifier
	Halter    Halter
}

var now = time.Now

// Handler is the process-wide fault sink. Only the first shutdown takes
// effect; later requests are logged and dropped.
type Handler struct {
	deps Deps

	mu        sync.Mutex
	callbacks []func()
	done      bool
	source    string
	message   string
}

func New(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// OnShutdown registers cb to run during the shutdown, in registration order.
func (h *Handler) OnShutdown(cb func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
}

// For returns a sink that tags faults with source.
func (h *Handler) For(source string) *Source {
	return &Source{h: h, source: source}
}

func (h *Handler) InvokeShutdown(msg string) {
	h.shutdown("controller", msg)
}

func (h *Handler) IsShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Message returns the message of the shutdown that took effect.
func (h *Handler) Message() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.message
}

func (h *Handler) Status() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]any{
		"shutdown": h.done,
		"source":   h.source,
		"message":  h.message,
	}
}

func (h *Handler) shutdown(source, msg string) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		log.Warn().Str("source", source).Str("message", msg).Msg("Already shut down, ignoring fault")
		return
	}
	h.done = true
	h.source = source
	h.message = msg
	callbacks := append([]func(){}, h.callbacks...)
	h.mu.Unlock()

	log.Error().Str("source", source).Str("message", msg).Msg("Emergency shutdown")
	datadog.Incr("shutdown", "component:shutdown", "source:"+source)

	if h.deps.Journal != nil {
		if err := h.deps.Journal.RecordFault(source, msg); err != nil {
			log.Error().Err(err).Msg("Failed to journal fault")
		}
	}
	if h.deps.Publisher != nil {
		fault := mqtt.Fault{Timestamp: now(), Source: source, Message: msg}
		if err := h.deps.Publisher.PublishFault(fault); err != nil {
			log.Error().Err(err).Msg("Failed to publish fault")
		}
	}
	if h.deps.Notifier != nil {
		if err := h.deps.Notifier.Send("Peripheral controller shutdown", msg); err != nil {
			log.Error().Err(err).Msg("Failed to send shutdown notification")
		}
	}

	for _, cb := range callbacks {
		cb()
	}

	if h.deps.Halter != nil {
		h.deps.Halter.End()
	}
}

// Source is a Handler bound to the component reporting the fault.
type Source struct {
	h      *Handler
	source string
}

func (s *Source) InvokeShutdown(msg string) {
	s.h.shutdown(s.source, msg)
}
