package handler

import (
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/pkg/serverutils"
	internalWS "veritasai-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ProgressHandler upgrades authenticated requests to the websocket that
// carries document.progress events.
type ProgressHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewProgressHandler(hub *internalWS.Hub, log logger.ILogger) *ProgressHandler {
	return &ProgressHandler{hub: hub, logger: log}
}

// ServeWs expects the JWT middleware in front of it. Browsers pass the token
// as ?token= since they cannot set headers on the handshake.
func (h *ProgressHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, err := serverutils.UserID(c)
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("WS", "Starting progress session", map[string]interface{}{"user_id": userID.String()})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("WS", "Progress session ended", map[string]interface{}{"user_id": userID.String()})
	})(c)
}

func (h *ProgressHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
