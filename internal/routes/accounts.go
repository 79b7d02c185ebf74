package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/activity"
	"github.com/recoverly/recoverly/internal/cascade"
	"github.com/recoverly/recoverly/internal/checkin"
	"github.com/recoverly/recoverly/internal/contract"
	"github.com/recoverly/recoverly/internal/middleware"
	"github.com/recoverly/recoverly/internal/observer"
)

// RegisterAccountRoutes wires account, streak, contract and activity endpoints.
func RegisterAccountRoutes(r fiber.Router, d Deps) {
	a := d.App
	accounts := account.NewHandler(a.Accounts)
	views := observer.NewHandler(a.Observer, d.Logger)
	resets := cascade.NewHandler(a.Cascade)
	contracts := contract.NewHandler(a.Contracts)
	checkins := checkin.NewHandler(a.CheckIns)
	activities := activity.NewHandler(a.Activities)
	limit := middleware.RateLimit(d.Cache, d.Cfg.RateLimit, d.Logger)

	r.Post("/accounts", limit, accounts.Create)
	r.Get("/accounts/:accountId", views.Get)

	acc := r.Group("/accounts/:accountId")
	acc.Get("/entries", accounts.Entries)
	acc.Get("/stream", views.Stream)
	acc.Post("/check-in", limit, checkins.CheckIn)
	acc.Post("/restart", limit, resets.Restart)
	acc.Get("/contract", contracts.Status)
	acc.Post("/contract", limit, contracts.Start)
	acc.Post("/contract/evaluate", limit, contracts.Evaluate)
	acc.Post("/contract/forfeit", limit, contracts.Forfeit)
	acc.Post("/activities", limit, activities.Complete)
	acc.Post("/redemptions", limit, activities.Redeem)
}
