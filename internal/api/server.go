package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

// Executor runs fn on the goroutine that owns the peripheral state.
type Executor interface {
	Call(ctx context.Context, fn func(eventtime float64) error) error
}

// Snapshot builds the status document at eventtime.
type Snapshot func(eventtime float64) map[string]any

type Server struct {
	app        *fiber.App
	exec       Executor
	dispatcher *gcode.Dispatcher
	snapshot   Snapshot
	timeout    time.Duration
}

type CommandResponse struct {
	Command   string   `json:"command"`
	Responses []string `json:"responses"`
	Error     string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(exec Executor, dispatcher *gcode.Dispatcher, snapshot Snapshot) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		AppName:               "peripheral-controller",
	})
	app.Use(recover.New())
	app.Use(requestLogger)

	s := &Server{
		app:        app,
		exec:       exec,
		dispatcher: dispatcher,
		snapshot:   snapshot,
		timeout:    10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	api.Get("/health", s.healthCheck)
	api.Get("/status", s.getStatus)
	api.Get("/commands", s.getCommands)
	api.Post("/commands/:name", s.runCommand)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start(address string) error {
	log.Info().Str("address", address).Msg("Starting API server")
	return s.app.Listen(address)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")
	return err
}
