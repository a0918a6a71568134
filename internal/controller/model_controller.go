package controller

import (
	"veritasai-be/internal/pkg/serverutils"
	"veritasai-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IModelController interface {
	RegisterRoutes(r fiber.Router)
	ListModels(ctx *fiber.Ctx) error
	ListProviders(ctx *fiber.Ctx) error
}

type modelController struct {
	modelService service.IModelService
}

func NewModelController(modelService service.IModelService) IModelController {
	return &modelController{modelService: modelService}
}

func (c *modelController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/models/v1")
	h.Get("", c.ListModels)
	h.Get("providers", c.ListProviders)
}

// ListModels serves ?provider=, defaulting to the configured chat provider.
func (c *modelController) ListModels(ctx *fiber.Ctx) error {
	res, err := c.modelService.ListModels(ctx.UserContext(), ctx.Query("provider"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list models", res))
}

func (c *modelController) ListProviders(ctx *fiber.Ctx) error {
	res, err := c.modelService.ListProviders(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list providers", res))
}
