package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/handlers"
	"github.com/example/stagelink/internal/middleware"
	"github.com/example/stagelink/internal/realtime"
	"github.com/example/stagelink/internal/session"
)

// Register wires up the GraphQL endpoint and the realtime channel.
func Register(app *fiber.App, mgr *session.Manager, notifier realtime.Notifier, log *zap.SugaredLogger) {
	gql := handlers.NewGraphQLHandler(mgr, log)
	app.Post("/graphql", middleware.Auth(mgr, log), gql.Serve)

	hub := realtime.NewHub()
	rt := realtime.NewHandler(hub, mgr, notifier, log)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(rt.Serve))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
