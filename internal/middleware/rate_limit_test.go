package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/logging"
)

func TestRateLimitPerAccount(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	limit := RateLimit(cache, 3, logging.Discard())
	app.Post("/accounts/:accountId/check-in", limit, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(id string) int {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/accounts/"+id+"/check-in", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 3; i++ {
		if status := do("a1"); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, status)
		}
	}
	if status := do("a1"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 after the limit, got %d", status)
	}
	if status := do("a2"); status != fiber.StatusOK {
		t.Fatalf("other accounts must not be limited, got %d", status)
	}
}

func TestRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/x", RateLimit(nil, 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/x", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected no limiting without redis, got %d", resp.StatusCode)
		}
	}
}
