package contract

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/account"
)

// Handler exposes commitment contract endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a contract HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Status returns the current contract state.
func (h *Handler) Status(c *fiber.Ctx) error {
	st, err := h.service.Status(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusOK).JSON(st)
}

// Start stakes coins on a new contract.
func (h *Handler) Start(c *fiber.Ctx) error {
	acc, err := h.service.Start(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(acc)
}

// Evaluate settles an expired contract.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	ev, err := h.service.Evaluate(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusOK).JSON(ev)
}

// Forfeit gives up the active contract.
func (h *Handler) Forfeit(c *fiber.Ctx) error {
	res, err := h.service.DeclareForfeit(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}
