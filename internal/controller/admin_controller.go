package controller

import (
	"strconv"

	"veritasai-be/internal/pkg/serverutils"
	"veritasai-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	GetLogs(ctx *fiber.Ctx) error
	GetLogDetail(ctx *fiber.Ctx) error
}

type adminController struct {
	logService service.ILogService
}

func NewAdminController(logService service.ILogService) IAdminController {
	return &adminController{logService: logService}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin", serverutils.RequireRole(serverutils.RoleAdmin))
	h.Get("/logs", c.GetLogs)
	h.Get("/logs/:id", c.GetLogDetail)
}

func (c *adminController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	level := ctx.Query("level", "")
	module := ctx.Query("module", "")

	logs, err := c.logService.GetSystemLogs(ctx.UserContext(), page, limit, level, module)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}

func (c *adminController) GetLogDetail(ctx *fiber.Ctx) error {
	// log ids are line hashes, not UUIDs
	l, err := c.logService.GetLogDetail(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Log detail", l))
}
