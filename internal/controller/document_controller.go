package controller

import (
	"fmt"
	"io"
	"strings"

	"veritasai-be/internal/apperr"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/pkg/serverutils"
	"veritasai-be/internal/service"
	"veritasai-be/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Reprocess(ctx *fiber.Ctx) error
}

type documentController struct {
	documentService service.IDocumentService
	maxUploadSize   int64
}

func NewDocumentController(documentService service.IDocumentService, maxUploadSize int64) IDocumentController {
	return &documentController{
		documentService: documentService,
		maxUploadSize:   maxUploadSize,
	}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/document/v1")
	h.Post("", c.Upload)
	h.Get("", c.List)
	h.Get(":id", c.Show)
	h.Get(":id/status", c.Status)
	h.Post(":id/reprocess", c.Reprocess)
	h.Delete(":id", c.Delete)
}

// Upload takes a multipart "file" plus optional "category" and "tags"
// (comma separated or repeated).
func (c *documentController) Upload(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: file is required", apperr.ErrInvalidInput)
	}
	if c.maxUploadSize > 0 && fh.Size > c.maxUploadSize {
		return fmt.Errorf("%w: %s exceeds %s", apperr.ErrFileTooLarge,
			utils.FormatFileSize(fh.Size), utils.FormatFileSize(c.maxUploadSize))
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	req := dto.UploadDocumentRequest{
		FileName: fh.Filename,
		Data:     data,
		Tags:     formTags(ctx),
	}
	if category := strings.TrimSpace(ctx.FormValue("category")); category != "" {
		req.Category = &category
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.documentService.Upload(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	if res.Duplicate {
		return ctx.JSON(serverutils.SuccessResponse("File already exists", res))
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success upload document", res))
}

func formTags(ctx *fiber.Ctx) []string {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil
	}
	var tags []string
	for _, raw := range form.Value["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func (c *documentController) List(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ListDocumentsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.documentService.List(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list documents", res))
}

func (c *documentController) Show(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	res, err := c.documentService.Show(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show document", res))
}

func (c *documentController) Status(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	res, err := c.documentService.Status(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get document status", res))
}

func (c *documentController) Delete(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	if err := c.documentService.Delete(ctx.UserContext(), userId, id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete document", nil))
}

func (c *documentController) Reprocess(ctx *fiber.Ctx) error {
	userId, id, err := userAndID(ctx)
	if err != nil {
		return err
	}

	res, err := c.documentService.Reprocess(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success reprocess document", res))
}

// userAndID reads the caller and the :id path parameter.
func userAndID(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return userId, id, nil
}
