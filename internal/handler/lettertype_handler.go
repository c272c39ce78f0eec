package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/registry"
	"github.com/gofiber/fiber/v2"
)

// LetterTypeService is the registry surface the HTTP layer depends on.
type LetterTypeService interface {
	Define(ctx context.Context, in registry.DefineInput) (*domain.LetterType, error)
	AddField(ctx context.Context, letterTypeID string, in registry.FieldInput) (*domain.LetterType, error)
	Deactivate(ctx context.Context, letterTypeID string) error
	GetByID(ctx context.Context, id string) (*domain.LetterType, error)
	List(ctx context.Context) ([]domain.LetterType, error)
	Reconcile(ctx context.Context, letterTypeID string) (*domain.LetterType, error)
}

type LetterTypeHandler struct {
	service LetterTypeService
}

func NewLetterTypeHandler(service LetterTypeService) (*LetterTypeHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("letter type service is required")
	}
	return &LetterTypeHandler{service: service}, nil
}

func RegisterLetterTypeRoutes(router fiber.Router, service LetterTypeService) error {
	h, err := NewLetterTypeHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/letter-types", h.DefineLetterType)
	v1.Get("/letter-types", h.ListLetterTypes)
	v1.Get("/letter-types/:id", h.GetLetterType)
	v1.Post("/letter-types/:id/fields", h.AddField)
	v1.Post("/letter-types/:id/reconcile", h.ReconcileLetterType)
	v1.Delete("/letter-types/:id", h.DeactivateLetterType)

	return nil
}

type fieldRequest struct {
	FieldKey     string `json:"fieldKey"`
	DisplayName  string `json:"displayName"`
	DisplayOrder int    `json:"displayOrder"`
	IsRequired   bool   `json:"isRequired"`
	DefaultValue string `json:"defaultValue"`
	MinLength    int    `json:"minLength"`
	MaxLength    int    `json:"maxLength"`
	Pattern      string `json:"pattern"`
}

type defineLetterTypeRequest struct {
	TypeKey     string         `json:"typeKey"`
	DisplayName string         `json:"displayName"`
	Description string         `json:"description"`
	Fields      []fieldRequest `json:"fields"`
}

type fieldResponse struct {
	ID           string    `json:"id"`
	FieldKey     string    `json:"fieldKey"`
	DisplayName  string    `json:"displayName,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
	IsRequired   bool      `json:"isRequired"`
	DefaultValue string    `json:"defaultValue,omitempty"`
	MinLength    int       `json:"minLength,omitempty"`
	MaxLength    int       `json:"maxLength,omitempty"`
	Pattern      string    `json:"pattern,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

type letterTypeResponse struct {
	ID          string          `json:"id"`
	TypeKey     string          `json:"typeKey"`
	DisplayName string          `json:"displayName"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"isActive"`
	Fields      []fieldResponse `json:"fields"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

func (h *LetterTypeHandler) DefineLetterType(c *fiber.Ctx) error {
	var req defineLetterTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := registry.DefineInput{
		TypeKey:     req.TypeKey,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Fields:      make([]registry.FieldInput, 0, len(req.Fields)),
	}
	for _, f := range req.Fields {
		in.Fields = append(in.Fields, toFieldInput(f))
	}

	lt, err := h.service.Define(c.Context(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toLetterTypeResponse(lt))
}

func (h *LetterTypeHandler) ListLetterTypes(c *fiber.Ctx) error {
	types, err := h.service.List(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]letterTypeResponse, 0, len(types))
	for i := range types {
		responses = append(responses, toLetterTypeResponse(&types[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *LetterTypeHandler) GetLetterType(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	lt, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toLetterTypeResponse(lt))
}

func (h *LetterTypeHandler) AddField(c *fiber.Ctx) error {
	var req fieldRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	lt, err := h.service.AddField(c.Context(), id, toFieldInput(req))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toLetterTypeResponse(lt))
}

func (h *LetterTypeHandler) ReconcileLetterType(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	lt, err := h.service.Reconcile(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toLetterTypeResponse(lt))
}

func (h *LetterTypeHandler) DeactivateLetterType(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Deactivate(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"letterTypeId": id,
		"isActive":     false,
	})
}

func toFieldInput(req fieldRequest) registry.FieldInput {
	return registry.FieldInput{
		FieldKey:     req.FieldKey,
		DisplayName:  req.DisplayName,
		DisplayOrder: req.DisplayOrder,
		IsRequired:   req.IsRequired,
		DefaultValue: req.DefaultValue,
		MinLength:    req.MinLength,
		MaxLength:    req.MaxLength,
		Pattern:      req.Pattern,
	}
}

func toLetterTypeResponse(lt *domain.LetterType) letterTypeResponse {
	if lt == nil {
		return letterTypeResponse{}
	}

	fields := make([]fieldResponse, 0, len(lt.Fields))
	for i := range lt.Fields {
		f := &lt.Fields[i]
		fields = append(fields, fieldResponse{
			ID:           f.ID,
			FieldKey:     f.FieldKey,
			DisplayName:  f.DisplayName,
			DisplayOrder: f.DisplayOrder,
			IsRequired:   f.IsRequired,
			DefaultValue: f.DefaultValue,
			MinLength:    f.MinLength,
			MaxLength:    f.MaxLength,
			Pattern:      f.Pattern,
			CreatedAt:    f.CreatedAt,
		})
	}

	return letterTypeResponse{
		ID:          lt.ID,
		TypeKey:     lt.TypeKey,
		DisplayName: lt.DisplayName,
		Description: lt.Description,
		IsActive:    lt.IsActive,
		Fields:      fields,
		CreatedAt:   lt.CreatedAt,
		UpdatedAt:   lt.UpdatedAt,
	}
}
