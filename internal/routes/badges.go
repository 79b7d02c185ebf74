package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/badge"
)

// RegisterBadgeRoutes exposes the tier ladder.
func RegisterBadgeRoutes(r fiber.Router, catalog *badge.Catalog) {
	r.Get("/badges", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"tiers": catalog.Tiers()})
	})
}
