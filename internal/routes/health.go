package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterHealthRoutes adds the liveness/readiness endpoint.
func RegisterHealthRoutes(fapp *fiber.App, d Deps) {
	fapp.Get("/healthz", func(c *fiber.Ctx) error {
		status, healthy := d.App.Health(c.UserContext())
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// RegisterMetricsRoute serves the Prometheus registry.
func RegisterMetricsRoute(fapp *fiber.App) {
	fapp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
