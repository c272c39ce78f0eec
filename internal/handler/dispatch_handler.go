package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/burakkarakan/letter-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// DispatchAPI is the bulk-send surface the HTTP layer depends on.
type DispatchAPI interface {
	SendBulk(ctx context.Context, in service.SendBulkInput) (*domain.EmailBatch, []domain.EmailJob, error)
	CancelBatch(ctx context.Context, batchID string) (int64, error)
	GetBatchSummary(ctx context.Context, batchID string) (*service.BatchSummary, error)
	GetJob(ctx context.Context, id string) (*domain.EmailJob, error)
	ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.EmailJob, int64, error)
}

type DispatchHandler struct {
	service DispatchAPI
}

func NewDispatchHandler(service DispatchAPI) (*DispatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &DispatchHandler{service: service}, nil
}

func RegisterDispatchRoutes(router fiber.Router, service DispatchAPI) error {
	h, err := NewDispatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/letter-types/:id/send", h.SendBulk)
	v1.Post("/batches/:batchId/cancel", h.CancelBatch)
	v1.Get("/batches/:batchId", h.GetBatchSummary)
	v1.Get("/jobs/:id", h.GetJob)
	v1.Get("/jobs", h.ListJobs)

	return nil
}

type recipientRequest struct {
	Email       string            `json:"email"`
	EntityKey   string            `json:"entityKey"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	ExtraFields map[string]string `json:"extraFields,omitempty"`
}

type sendBulkRequest struct {
	TemplateID    string             `json:"templateId"`
	SignatureID   string             `json:"signatureId"`
	RatePerMinute int                `json:"ratePerMinute"`
	Recipients    []recipientRequest `json:"recipients"`
}

type jobResponse struct {
	ID                string     `json:"id"`
	BatchID           string     `json:"batchId"`
	LetterTypeID      string     `json:"letterTypeId"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject"`
	DocumentID        *string    `json:"documentId,omitempty"`
	TrackingID        string     `json:"trackingId"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	Status            string     `json:"status"`
	RetryCount        int        `json:"retryCount"`
	MaxRetries        int        `json:"maxRetries"`
	NextRetryAt       *time.Time `json:"nextRetryAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	OpenedAt          *time.Time `json:"openedAt,omitempty"`
	ClickedAt         *time.Time `json:"clickedAt,omitempty"`
	UnsubscribedAt    *time.Time `json:"unsubscribedAt,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`
	CreatedAt         time.Time  `json:"createdAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt,omitempty"`
}

type sendBulkResponse struct {
	BatchID       string        `json:"batchId"`
	Status        string        `json:"status"`
	TotalCount    int           `json:"totalCount"`
	RatePerMinute int           `json:"ratePerMinute"`
	Jobs          []jobResponse `json:"jobs"`
}

type listJobsResponse struct {
	Data []jobResponse `json:"data"`
	Meta listMeta      `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type batchSummaryResponse struct {
	BatchID    string                 `json:"batchId"`
	TotalCount int                    `json:"totalCount"`
	Status     string                 `json:"status"`
	Counts     []batchStatusCountItem `json:"counts"`
}

type batchStatusCountItem struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func (h *DispatchHandler) SendBulk(c *fiber.Ctx) error {
	var req sendBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := service.SendBulkInput{
		LetterTypeID:  strings.TrimSpace(c.Params("id")),
		TemplateID:    req.TemplateID,
		SignatureID:   req.SignatureID,
		RatePerMinute: req.RatePerMinute,
		CorrelationID: requestCorrelationID(c),
		Recipients:    make([]service.Recipient, 0, len(req.Recipients)),
	}
	for _, r := range req.Recipients {
		in.Recipients = append(in.Recipients, service.Recipient{
			Email:       r.Email,
			EntityKey:   r.EntityKey,
			Subject:     r.Subject,
			Body:        r.Body,
			ExtraFields: r.ExtraFields,
		})
	}

	batch, jobs, err := h.service.SendBulk(c.Context(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(sendBulkResponse{
		BatchID:       batch.ID,
		Status:        batch.Status.String(),
		TotalCount:    batch.TotalCount,
		RatePerMinute: batch.RatePerMinute,
		Jobs:          toJobResponses(jobs),
	})
}

func (h *DispatchHandler) CancelBatch(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	canceled, err := h.service.CancelBatch(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"batchId":      batchID,
		"status":       domain.BatchStatusCanceled.String(),
		"canceledJobs": canceled,
	})
}

func (h *DispatchHandler) GetBatchSummary(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	summary, err := h.service.GetBatchSummary(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]batchStatusCountItem, 0, len(summary.Counts))
	for _, count := range summary.Counts {
		items = append(items, batchStatusCountItem{
			Status: count.Status.String(),
			Count:  count.Count,
		})
	}

	return c.Status(fiber.StatusOK).JSON(batchSummaryResponse{
		BatchID:    summary.BatchID,
		TotalCount: summary.TotalCount,
		Status:     summary.Status.String(),
		Counts:     items,
	})
}

func (h *DispatchHandler) GetJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	job, err := h.service.GetJob(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *DispatchHandler) ListJobs(c *fiber.Ctx) error {
	params, err := parseJobListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	jobs, total, err := h.service.ListJobs(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listJobsResponse{
		Data: toJobResponses(jobs),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseJobListParams(c *fiber.Ctx) (repository.JobListParams, error) {
	params := repository.JobListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.JobListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.JobListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseJobStatusFromString(rawStatus)
		if err != nil {
			return repository.JobListParams{}, err
		}
		params.Status = &status
	}

	if batchID := strings.TrimSpace(c.Query("batchId")); batchID != "" {
		params.BatchID = &batchID
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.JobListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.JobListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toJobResponses(jobs []domain.EmailJob) []jobResponse {
	responses := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, toJobResponse(&jobs[i]))
	}
	return responses
}

func toJobResponse(j *domain.EmailJob) jobResponse {
	if j == nil {
		return jobResponse{}
	}

	return jobResponse{
		ID:                j.ID,
		BatchID:           j.BatchID,
		LetterTypeID:      j.LetterTypeID,
		Recipient:         j.Recipient,
		Subject:           j.Subject,
		DocumentID:        j.DocumentID,
		TrackingID:        j.TrackingID,
		ProviderMessageID: j.ProviderMessageID,
		Status:            j.Status.String(),
		RetryCount:        j.RetryCount,
		MaxRetries:        j.MaxRetries,
		NextRetryAt:       j.NextRetryAt,
		SentAt:            j.SentAt,
		DeliveredAt:       j.DeliveredAt,
		OpenedAt:          j.OpenedAt,
		ClickedAt:         j.ClickedAt,
		UnsubscribedAt:    j.UnsubscribedAt,
		LastError:         j.LastError,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}
