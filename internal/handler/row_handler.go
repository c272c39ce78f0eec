package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/ingest"
	"github.com/gofiber/fiber/v2"
)

// RowStore reads and writes provisioned row data for a letter type.
type RowStore interface {
	UpsertRow(ctx context.Context, lt *domain.LetterType, entityKey string, values map[string]string) error
	GetRow(ctx context.Context, lt *domain.LetterType, entityKey string) (map[string]string, error)
}

// RowImporter runs a parsed sheet through schema validation and row writes.
type RowImporter interface {
	Import(ctx context.Context, letterTypeID string, rows []ingest.Row) (*ingest.ImportResult, error)
}

type RowHandler struct {
	types    LetterTypeService
	store    RowStore
	importer RowImporter
}

func NewRowHandler(types LetterTypeService, store RowStore, importer RowImporter) (*RowHandler, error) {
	if types == nil {
		return nil, fmt.Errorf("letter type service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("row store is required")
	}
	if importer == nil {
		return nil, fmt.Errorf("row importer is required")
	}
	return &RowHandler{types: types, store: store, importer: importer}, nil
}

func RegisterRowRoutes(router fiber.Router, types LetterTypeService, store RowStore, importer RowImporter) error {
	h, err := NewRowHandler(types, store, importer)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/letter-types/:id/rows/import", h.ImportRows)
	v1.Post("/letter-types/:id/rows", h.UpsertRow)
	v1.Get("/letter-types/:id/rows/:entityKey", h.GetRow)

	return nil
}

type upsertRowRequest struct {
	EntityKey string            `json:"entityKey"`
	Values    map[string]string `json:"values"`
}

type rowResponse struct {
	LetterTypeID string            `json:"letterTypeId"`
	EntityKey    string            `json:"entityKey"`
	Values       map[string]string `json:"values"`
}

// ImportRows accepts a multipart upload under the "file" field. The format
// is picked by file extension; anything that is not .xlsx parses as CSV.
func (h *RowHandler) ImportRows(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "uploaded file could not be opened")
	}
	defer file.Close()

	var rows []ingest.Row
	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".xlsx") {
		rows, err = ingest.ParseWorkbook(file)
	} else {
		rows, err = ingest.ParseCSV(file)
	}
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.importer.Import(c.Context(), strings.TrimSpace(c.Params("id")), rows)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *RowHandler) UpsertRow(c *fiber.Ctx) error {
	var req upsertRowRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	lt, err := h.types.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.store.UpsertRow(c.Context(), lt, strings.TrimSpace(req.EntityKey), req.Values); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(rowResponse{
		LetterTypeID: lt.ID,
		EntityKey:    strings.TrimSpace(req.EntityKey),
		Values:       req.Values,
	})
}

func (h *RowHandler) GetRow(c *fiber.Ctx) error {
	lt, err := h.types.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	entityKey := strings.TrimSpace(c.Params("entityKey"))
	values, err := h.store.GetRow(c.Context(), lt, entityKey)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(rowResponse{
		LetterTypeID: lt.ID,
		EntityKey:    entityKey,
		Values:       values,
	})
}
