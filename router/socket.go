package router

import (
	"messenger-sync/socket"

	"github.com/gofiber/fiber/v2"
)

// SocketPath is the single WebSocket upgrade path.
const SocketPath = "/api/ws"

func Socket(app *fiber.App, server *socket.Server) {
	server.Init(app, SocketPath)
}
