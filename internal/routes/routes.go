package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/app"
	"github.com/recoverly/recoverly/internal/config"
	"github.com/recoverly/recoverly/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	App    *app.App
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(fapp *fiber.App, d Deps) error {
	fapp.Use(recover.New())
	fapp.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		fapp.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	fapp.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		fapp.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(fapp, d)
	RegisterMetricsRoute(fapp)

	api := fapp.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterBadgeRoutes(api, d.App.Catalog)
	RegisterAccountRoutes(api, d)
	return nil
}
