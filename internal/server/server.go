package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/app"
	"github.com/recoverly/recoverly/internal/config"
	"github.com/recoverly/recoverly/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, a *app.App, logger *slog.Logger) (*Server, error) {
	fapp := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		ErrorHandler: errorHandler,
	})

	if err := routes.Setup(fapp, routes.Deps{Cfg: cfg, App: a, Cache: a.Cache, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: fapp, cfg: cfg}, nil
}

// App exposes the Fiber application for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
