package activity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/account"
)

// Handler exposes activity and redemption endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an activity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type redeemRequest struct {
	Item string `json:"item"`
	Cost int64  `json:"cost"`
}

// Complete rewards a finished activity.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req Completion
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.CompletionID == "" {
		return fiber.NewError(http.StatusBadRequest, "completion_id is required")
	}
	res, err := h.service.Complete(c.UserContext(), c.Params("accountId"), req)
	if err != nil {
		return Error(err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Redeem spends coins on a reward item.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.Item == "" {
		return fiber.NewError(http.StatusBadRequest, "item is required")
	}
	acc, err := h.service.Redeem(c.UserContext(), c.Params("accountId"), req.Item, req.Cost)
	if err != nil {
		return Error(err)
	}
	return c.Status(http.StatusOK).JSON(acc)
}

// Error maps activity errors, falling back to account errors.
func Error(err error) error {
	switch {
	case errors.Is(err, ErrInProgress), errors.Is(err, ErrAlreadyCompleted):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownKind):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return account.Error(err)
	}
}
