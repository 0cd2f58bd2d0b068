package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/conversation-service/internal/middleware"
	"github.com/fathima-sithara/conversation-service/internal/ws"
)

// Register mounts the REST and websocket routes.
func Register(app *fiber.App, h *Handler, wsSrv *ws.Server, jv *middleware.Validator) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	// the ws route authenticates through the query token, not the header
	api.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(wsSrv.HandleWS()))

	auth := api.Group("/", jv.Auth())

	auth.Post("/conversations", h.CreateConversation)
	auth.Get("/conversations", h.Inbox)
	auth.Delete("/conversations/:id", h.DeleteConversation)
	auth.Get("/conversations/:id/messages", h.History)
	auth.Post("/conversations/:id/messages", h.SendMessage)
	auth.Post("/conversations/:id/read", h.MarkRead)
	auth.Get("/conversations/:id/unread", h.UnreadCount)
	auth.Patch("/messages/:id", h.EditMessage)
	auth.Delete("/messages/:id", h.DeleteMessage)
	auth.Post("/attachments", h.UploadAttachments)
}
