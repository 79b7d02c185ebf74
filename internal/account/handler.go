package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account provisioning and journal endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create provisions a new account.
func (h *Handler) Create(c *fiber.Ctx) error {
	acc, err := h.service.Provision(c.UserContext())
	if err != nil {
		return Error(err)
	}
	return c.Status(http.StatusCreated).JSON(acc)
}

// Entries lists the coin journal, newest first.
func (h *Handler) Entries(c *fiber.Ctx) error {
	id := c.Params("accountId")
	entries, err := h.service.Entries(c.UserContext(), id, c.QueryInt("limit", 0))
	if err != nil {
		return Error(err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id": id,
		"entries":    entries,
	})
}

// Error maps domain errors onto HTTP errors.
func Error(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrContractAlreadyActive), errors.Is(err, ErrNoActiveContract),
		errors.Is(err, ErrConcurrentModification):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
