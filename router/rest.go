package router

import (
	"messenger-sync/controller"
	"messenger-sync/middleware"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RestOptions struct {
	AccessKey string
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// AccessLog enables the request logger on /api.
	AccessLog bool
}

func Rest(app *fiber.App, messages *controller.Messenger, opts RestOptions) {
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	if opts.AccessLog {
		api.Use(logger.New())
	}

	api.Get("/health", func(c *fiber.Ctx) error {
		return utils.Success(c, "ok", nil)
	})

	auth := []fiber.Handler{middleware.JWT(opts.AccessKey), middleware.OTP()}

	// Presence
	api.Get("/presence", append(auth, messages.Online)...)
	api.Get("/presence/:userId", append(auth, messages.Presence)...)

	// Messages
	msg := api.Group("/messages", auth...)
	msg.Get("/recent", messages.Recent)
	msg.Get("/:userId", messages.History)
	msg.Post("/:userId/read", messages.MarkRead)
	msg.Post("/:id/pin", messages.Pin)
	msg.Post("/:id/unpin", messages.Unpin)
	msg.Post("/:id/reactions", messages.AddReaction)
	msg.Delete("/:id/reactions", messages.RemoveReaction)
	msg.Post("/:id/reactions/toggle", messages.ToggleReaction)
	msg.Put("/:id/edit", messages.Edit)
	msg.Delete("/:id/delete", messages.Delete)
}
