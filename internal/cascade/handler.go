package cascade

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/account"
)

// Handler exposes the restart endpoint.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler builds a cascade HTTP handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// Restart resets the caller's streak.
func (h *Handler) Restart(c *fiber.Ctx) error {
	res, err := h.coordinator.Reset(c.UserContext(), c.Params("accountId"), TriggerRestart)
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}
