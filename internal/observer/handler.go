package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/recoverly/recoverly/internal/account"
)

const heartbeatInterval = 15 * time.Second

// Handler serves account views and the server-sent event stream.
type Handler struct {
	observer *Observer
	logger   *slog.Logger
}

// NewHandler builds an observer HTTP handler.
func NewHandler(observer *Observer, logger *slog.Logger) *Handler {
	return &Handler{observer: observer, logger: logger}
}

// Get observes and returns the account.
func (h *Handler) Get(c *fiber.Ctx) error {
	v, err := h.observer.Observe(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.Error(err)
	}
	return c.Status(http.StatusOK).JSON(v)
}

// Stream pushes every reconciled snapshot as a server-sent event.
func (h *Handler) Stream(c *fiber.Ctx) error {
	id := c.Params("accountId")
	if _, err := h.observer.View(c.UserContext(), id); err != nil {
		return account.Error(err)
	}
	if h.observer.feed == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, ErrNoFeed.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		views := make(chan View, 4)
		go func() {
			defer close(views)
			err := h.observer.Watch(ctx, id, func(v View) error {
				select {
				case views <- v:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil && ctx.Err() == nil {
				h.logger.Warn("account stream ended", "account_id", id, "error", err)
			}
		}()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case v, ok := <-views:
				if !ok {
					return
				}
				payload, err := json.Marshal(v)
				if err != nil {
					h.logger.Error("encode account view", "account_id", id, "error", err)
					return
				}
				fmt.Fprintf(w, "id: %d\nevent: account\ndata: %s\n\n", v.Account.Version, payload)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
