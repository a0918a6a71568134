package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"veritasai-be/internal/dto"
	"veritasai-be/internal/pkg/logger"
	"veritasai-be/internal/pkg/serverutils"
	"veritasai-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	DocumentHistory(ctx *fiber.Ctx) error
	ClearDocumentHistory(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	logger      logger.ILogger
}

func NewChatController(chatService service.IChatService, log logger.ILogger) IChatController {
	return &chatController{
		chatService: chatService,
		logger:      log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Post("stream", c.Stream)
	h.Get("document/:id/history", c.DocumentHistory)
	h.Delete("document/:id/history", c.ClearDocumentHistory)
}

// Stream answers one chat turn as server-sent events. Every frame is
// "data: {json}\n\n"; the last one carries done or error.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ChatTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// fasthttp does not cancel the request context when the client goes
	// away; a failed flush cancels this one instead.
	streamCtx, cancel := context.WithCancel(ctx.UserContext())
	events, err := c.chatService.Chat(streamCtx, userId, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for evt := range events {
			if err := writeEvent(w, evt); err != nil {
				c.logger.Info("CHAT", "Client disconnected mid-stream", map[string]interface{}{
					"user_id": userId.String(),
					"error":   err.Error(),
				})
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, evt dto.StreamEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func (c *chatController) DocumentHistory(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatService.DocumentHistory(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) ClearDocumentHistory(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	if err := c.chatService.ClearDocumentHistory(ctx.UserContext(), userId, id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success clear chat history", nil))
}
