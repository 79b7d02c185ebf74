package checkin

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/account"
)

// Handler exposes the check-in endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a check-in HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CheckIn records today's check-in. A repeated call on the same date returns 200 with awarded=false.
func (h *Handler) CheckIn(c *fiber.Ctx) error {
	res, err := h.service.CheckIn(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	status := http.StatusOK
	if res.Awarded {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(res)
}
