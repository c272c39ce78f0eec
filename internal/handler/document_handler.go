package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/burakkarakan/letter-engine/internal/document"
	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// DocumentService generates and persists one rendered document.
type DocumentService interface {
	Generate(ctx context.Context, in document.GenerateInput) (*domain.GeneratedDocument, error)
}

type DocumentHandler struct {
	service DocumentService
}

func NewDocumentHandler(service DocumentService) (*DocumentHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("document service is required")
	}
	return &DocumentHandler{service: service}, nil
}

func RegisterDocumentRoutes(router fiber.Router, service DocumentService) error {
	h, err := NewDocumentHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/documents/generate", h.GenerateDocument)

	return nil
}

type generateDocumentRequest struct {
	LetterTypeID string            `json:"letterTypeId"`
	EntityKey    string            `json:"entityKey"`
	TemplateID   string            `json:"templateId"`
	SignatureID  string            `json:"signatureId"`
	ExtraFields  map[string]string `json:"extraFields"`
}

type documentResponse struct {
	ID           string    `json:"id"`
	LetterTypeID string    `json:"letterTypeId"`
	EntityKey    string    `json:"entityKey"`
	TemplateID   string    `json:"templateId"`
	SignatureID  *string   `json:"signatureId,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

func (h *DocumentHandler) GenerateDocument(c *fiber.Ctx) error {
	var req generateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	doc, err := h.service.Generate(c.Context(), document.GenerateInput{
		LetterTypeID: req.LetterTypeID,
		EntityKey:    req.EntityKey,
		TemplateID:   req.TemplateID,
		SignatureID:  req.SignatureID,
		ExtraFields:  req.ExtraFields,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(documentResponse{
		ID:           doc.ID,
		LetterTypeID: doc.LetterTypeID,
		EntityKey:    doc.EntityKey,
		TemplateID:   doc.TemplateID,
		SignatureID:  doc.SignatureID,
		SizeBytes:    doc.SizeBytes,
		CreatedAt:    doc.CreatedAt,
	})
}
