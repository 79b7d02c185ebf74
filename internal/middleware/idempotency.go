package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "recoverly:idempotency:v1:"
	pendingMarker        = "pending"
	replayHeader         = "Idempotent-Replay"
	cacheOpTimeout       = 2 * time.Second
)

// replay is the part of a response kept for later retries. Handlers here only
// emit JSON, so the content type is the one header worth keeping.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type replayCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r replayCache) lookup(ctx context.Context, key string) (replay, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return replay{}, false, nil
	}
	if err != nil {
		return replay{}, false, err
	}
	if string(raw) == pendingMarker {
		return replay{}, true, errDuplicateInFlight
	}
	var rep replay
	if err := json.Unmarshal(raw, &rep); err != nil {
		return replay{}, false, err
	}
	return rep, true, nil
}

func (r replayCache) reserve(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, pendingMarker, r.ttl).Result()
}

func (r replayCache) save(key string, rep replay) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

func (r replayCache) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	r.client.Del(ctx, key)
}

// replayable excludes answers that a retry may legitimately change: server
// errors, lost races and rate limiting.
func replayable(status int) bool {
	switch {
	case status >= fiber.StatusInternalServerError:
		return false
	case status == fiber.StatusConflict, status == fiber.StatusTooManyRequests:
		return false
	}
	return true
}

var errDuplicateInFlight = fiber.NewError(fiber.StatusConflict, "request with this idempotency key is still in progress")

// Idempotency makes POST retries safe: a request repeating an Idempotency-Key
// already seen on the same path gets the first response back instead of
// running again. Requests without the header, and all reads, pass through.
// Handler errors are rendered here so that rejections are replayed as well.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	rc := replayCache{client: cache, ttl: ttl}
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		clientKey := c.Get(idempotencyKeyHeader)
		if clientKey == "" {
			return c.Next()
		}
		key := idempotencyPrefix + c.Path() + ":" + clientKey
		log := logger.With(slog.String("idempotency_key", clientKey), slog.String("path", c.Path()))

		ctx, cancel := context.WithTimeout(c.UserContext(), cacheOpTimeout)
		defer cancel()

		rep, found, err := rc.lookup(ctx, key)
		switch {
		case errors.Is(err, errDuplicateInFlight):
			return err
		case err != nil:
			log.Error("idempotency lookup", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		case found:
			c.Set(replayHeader, "true")
			if rep.ContentType != "" {
				c.Set(fiber.HeaderContentType, rep.ContentType)
			}
			return c.Status(rep.Status).Send(rep.Body)
		}

		reserved, err := rc.reserve(ctx, key)
		if err != nil {
			log.Error("idempotency reserve", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !reserved {
			return errDuplicateInFlight
		}

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				rc.release(key)
				return herr
			}
		}
		if !replayable(c.Response().StatusCode()) {
			rc.release(key)
			return nil
		}

		rep = replay{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := rc.save(key, rep); err != nil {
			log.Warn("idempotency save", slog.Any("error", err))
			rc.release(key)
		}
		return nil
	}
}
