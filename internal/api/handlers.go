package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
	"github.com/thatsimonsguy/peripheral-controller/internal/reactor"
)

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var status map[string]any
	err := s.exec.Call(ctx, func(eventtime float64) error {
		status = s.snapshot(eventtime)
		return nil
	})
	if err != nil {
		return s.callFailed(c, err)
	}
	return c.JSON(status)
}

func (s *Server) getCommands(c *fiber.Ctx) error {
	return c.JSON(s.dispatcher.Help())
}

func (s *Server) runCommand(c *fiber.Ctx) error {
	name := c.Params("name")

	params := map[string]string{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var (
		responses []string
		cmdErr    error
	)
	err := s.exec.Call(ctx, func(float64) error {
		responses, cmdErr = s.dispatcher.Run(name, params)
		return nil
	})
	if err != nil {
		return s.callFailed(c, err)
	}

	resp := CommandResponse{Command: name, Responses: responses}
	if resp.Responses == nil {
		resp.Responses = []string{}
	}
	if cmdErr != nil {
		resp.Error = cmdErr.Error()
		status := fiber.StatusBadRequest
		if errors.Is(cmdErr, gcode.ErrUnknownCommand) {
			status = fiber.StatusNotFound
		}
		log.Warn().Err(cmdErr).Str("command", name).Msg("Command failed")
		return c.Status(status).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) callFailed(c *fiber.Ctx, err error) error {
	if errors.Is(err, reactor.ErrClosed) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "controller is shut down"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
}
