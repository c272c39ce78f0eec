package repository

import (
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
)

// LetterTypeModel is the persistence model for the letter_types table.
type LetterTypeModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	TypeKey     string `gorm:"type:varchar(64);not null"`
	DisplayName string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`
	IsActive    bool   `gorm:"not null;default:true"`
	Fields      []FieldDefinitionModel `gorm:"foreignKey:LetterTypeID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (LetterTypeModel) TableName() string {
	return "letter_types"
}

// FieldDefinitionModel is the persistence model for field_definitions.
type FieldDefinitionModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	LetterTypeID string `gorm:"type:uuid;not null"`
	FieldKey     string `gorm:"type:varchar(64);not null"`
	DisplayName  string `gorm:"type:varchar(255)"`
	DisplayOrder int    `gorm:"not null;default:0"`
	IsRequired   bool   `gorm:"not null;default:false"`
	DefaultValue string `gorm:"type:varchar(1000)"`
	MinLength    int    `gorm:"not null;default:0"`
	MaxLength    int    `gorm:"not null;default:0"`
	Pattern      string `gorm:"type:varchar(255)"`
	CreatedAt    time.Time
}

func (FieldDefinitionModel) TableName() string {
	return "field_definitions"
}

// ProvisionedColumnModel records which field has a physical column in the
// letter type's row table. Rows are only ever added, mirroring the
// add-only column policy.
type ProvisionedColumnModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	LetterTypeID string `gorm:"type:uuid;not null"`
	FieldKey     string `gorm:"type:varchar(64);not null"`
	ColumnName   string `gorm:"type:varchar(64);not null"`
	CreatedAt    time.Time
}

func (ProvisionedColumnModel) TableName() string {
	return "provisioned_columns"
}

// GeneratedDocumentModel is the persistence model for generated_documents.
type GeneratedDocumentModel struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	LetterTypeID string  `gorm:"type:uuid;not null"`
	EntityKey    string  `gorm:"type:varchar(128);not null"`
	TemplateID   string  `gorm:"type:varchar(128);not null"`
	SignatureID  *string `gorm:"type:varchar(128)"`
	SizeBytes    int64   `gorm:"not null"`
	Content      []byte  `gorm:"type:bytea"`
	CreatedAt    time.Time
}

func (GeneratedDocumentModel) TableName() string {
	return "generated_documents"
}

// EmailBatchModel is the persistence model for email_batches.
type EmailBatchModel struct {
	ID            string             `gorm:"type:uuid;primaryKey"`
	LetterTypeID  string             `gorm:"type:uuid;not null"`
	TemplateID    string             `gorm:"type:varchar(128);not null"`
	RatePerMinute int                `gorm:"not null"`
	TotalCount    int                `gorm:"not null"`
	Status        domain.BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EmailBatchModel) TableName() string {
	return "email_batches"
}

// EmailJobModel is the persistence model for email_jobs.
type EmailJobModel struct {
	ID                string           `gorm:"type:uuid;primaryKey"`
	BatchID           string           `gorm:"type:uuid;not null"`
	LetterTypeID      string           `gorm:"type:uuid;not null"`
	Recipient         string           `gorm:"type:varchar(255);not null"`
	Subject           string           `gorm:"type:varchar(500);not null"`
	Body              string           `gorm:"type:text;not null"`
	DocumentID        *string          `gorm:"type:uuid"`
	TrackingID        string           `gorm:"type:uuid;not null"`
	ProviderMessageID *string          `gorm:"type:varchar(255)"`
	Status            domain.JobStatus `gorm:"type:varchar(20);not null"`
	RetryCount        int              `gorm:"not null;default:0"`
	MaxRetries        int              `gorm:"not null;default:5"`
	NextRetryAt       *time.Time
	StatusChangedAt   time.Time `gorm:"not null"`
	SentAt            *time.Time
	DeliveredAt       *time.Time
	OpenedAt          *time.Time
	ClickedAt         *time.Time
	UnsubscribedAt    *time.Time
	LastError         *string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (EmailJobModel) TableName() string {
	return "email_jobs"
}

// WebhookEventModel is the persistence model for webhook_events.
type WebhookEventModel struct {
	ID                string           `gorm:"type:uuid;primaryKey"`
	ProviderEventID   string           `gorm:"type:varchar(128);not null"`
	ProviderMessageID string           `gorm:"type:varchar(255);not null"`
	EmailJobID        *string          `gorm:"type:uuid"`
	Email             string           `gorm:"type:varchar(255)"`
	EventType         domain.EventType `gorm:"type:varchar(20);not null"`
	EventAt           time.Time        `gorm:"not null"`
	Reason            *string          `gorm:"type:text"`
	Response          *string          `gorm:"type:text"`
	RawBody           string           `gorm:"type:text"`
	ReceivedAt        time.Time        `gorm:"not null"`
}

func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

func letterTypeModelFromDomain(lt *domain.LetterType) *LetterTypeModel {
	if lt == nil {
		return nil
	}

	fields := make([]FieldDefinitionModel, 0, len(lt.Fields))
	for i := range lt.Fields {
		fields = append(fields, *fieldModelFromDomain(&lt.Fields[i]))
	}

	return &LetterTypeModel{
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

func letterTypeModelToDomain(m *LetterTypeModel) *domain.LetterType {
	if m == nil {
		return nil
	}

	fields := make([]domain.FieldDefinition, 0, len(m.Fields))
	for i := range m.Fields {
		fields = append(fields, *fieldModelToDomain(&m.Fields[i]))
	}

	return &domain.LetterType{
		ID:          m.ID,
		TypeKey:     m.TypeKey,
		DisplayName: m.DisplayName,
		Description: m.Description,
		IsActive:    m.IsActive,
		Fields:      fields,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fieldModelFromDomain(f *domain.FieldDefinition) *FieldDefinitionModel {
	if f == nil {
		return nil
	}

	return &FieldDefinitionModel{
		ID:           f.ID,
		LetterTypeID: f.LetterTypeID,
		FieldKey:     f.FieldKey,
		DisplayName:  f.DisplayName,
		DisplayOrder: f.DisplayOrder,
		IsRequired:   f.IsRequired,
		DefaultValue: f.DefaultValue,
		MinLength:    f.MinLength,
		MaxLength:    f.MaxLength,
		Pattern:      f.Pattern,
		CreatedAt:    f.CreatedAt,
	}
}

func fieldModelToDomain(m *FieldDefinitionModel) *domain.FieldDefinition {
	if m == nil {
		return nil
	}

	return &domain.FieldDefinition{
		ID:           m.ID,
		LetterTypeID: m.LetterTypeID,
		FieldKey:     m.FieldKey,
		DisplayName:  m.DisplayName,
		DisplayOrder: m.DisplayOrder,
		IsRequired:   m.IsRequired,
		DefaultValue: m.DefaultValue,
		MinLength:    m.MinLength,
		MaxLength:    m.MaxLength,
		Pattern:      m.Pattern,
		CreatedAt:    m.CreatedAt,
	}
}

func batchModelFromDomain(b *domain.EmailBatch) *EmailBatchModel {
	if b == nil {
		return nil
	}

	return &EmailBatchModel{
		ID:            b.ID,
		LetterTypeID:  b.LetterTypeID,
		TemplateID:    b.TemplateID,
		RatePerMinute: b.RatePerMinute,
		TotalCount:    b.TotalCount,
		Status:        b.Status,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func batchModelToDomain(m *EmailBatchModel) *domain.EmailBatch {
	if m == nil {
		return nil
	}

	return &domain.EmailBatch{
		ID:            m.ID,
		LetterTypeID:  m.LetterTypeID,
		TemplateID:    m.TemplateID,
		RatePerMinute: m.RatePerMinute,
		TotalCount:    m.TotalCount,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func jobModelFromDomain(j *domain.EmailJob) *EmailJobModel {
	if j == nil {
		return nil
	}

	return &EmailJobModel{
		ID:                j.ID,
		BatchID:           j.BatchID,
		LetterTypeID:      j.LetterTypeID,
		Recipient:         j.Recipient,
		Subject:           j.Subject,
		Body:              j.Body,
		DocumentID:        j.DocumentID,
		TrackingID:        j.TrackingID,
		ProviderMessageID: j.ProviderMessageID,
		Status:            j.Status,
		RetryCount:        j.RetryCount,
		MaxRetries:        j.MaxRetries,
		NextRetryAt:       j.NextRetryAt,
		StatusChangedAt:   j.StatusChangedAt,
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

func jobModelToDomain(m *EmailJobModel) *domain.EmailJob {
	if m == nil {
		return nil
	}

	return &domain.EmailJob{
		ID:                m.ID,
		BatchID:           m.BatchID,
		LetterTypeID:      m.LetterTypeID,
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Body:              m.Body,
		DocumentID:        m.DocumentID,
		TrackingID:        m.TrackingID,
		ProviderMessageID: m.ProviderMessageID,
		Status:            m.Status,
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		NextRetryAt:       m.NextRetryAt,
		StatusChangedAt:   m.StatusChangedAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		OpenedAt:          m.OpenedAt,
		ClickedAt:         m.ClickedAt,
		UnsubscribedAt:    m.UnsubscribedAt,
		LastError:         m.LastError,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func eventModelFromDomain(e *domain.WebhookEvent) *WebhookEventModel {
	if e == nil {
		return nil
	}

	return &WebhookEventModel{
		ID:                e.ID,
		ProviderEventID:   e.ProviderEventID,
		ProviderMessageID: e.ProviderMessageID,
		EmailJobID:        e.EmailJobID,
		Email:             e.Email,
		EventType:         e.EventType,
		EventAt:           e.EventAt,
		Reason:            e.Reason,
		Response:          e.Response,
		RawBody:           e.RawBody,
		ReceivedAt:        e.ReceivedAt,
	}
}

func eventModelToDomain(m *WebhookEventModel) *domain.WebhookEvent {
	if m == nil {
		return nil
	}

	return &domain.WebhookEvent{
		ID:                m.ID,
		ProviderEventID:   m.ProviderEventID,
		ProviderMessageID: m.ProviderMessageID,
		EmailJobID:        m.EmailJobID,
		Email:             m.Email,
		EventType:         m.EventType,
		EventAt:           m.EventAt,
		Reason:            m.Reason,
		Response:          m.Response,
		RawBody:           m.RawBody,
		ReceivedAt:        m.ReceivedAt,
	}
}

func documentModelFromDomain(d *domain.GeneratedDocument) *GeneratedDocumentModel {
	if d == nil {
		return nil
	}

	return &GeneratedDocumentModel{
		ID:           d.ID,
		LetterTypeID: d.LetterTypeID,
		EntityKey:    d.EntityKey,
		TemplateID:   d.TemplateID,
		SignatureID:  d.SignatureID,
		SizeBytes:    d.SizeBytes,
		Content:      d.Content,
		CreatedAt:    d.CreatedAt,
	}
}

func documentModelToDomain(m *GeneratedDocumentModel) *domain.GeneratedDocument {
	if m == nil {
		return nil
	}

	return &domain.GeneratedDocument{
		ID:           m.ID,
		LetterTypeID: m.LetterTypeID,
		EntityKey:    m.EntityKey,
		TemplateID:   m.TemplateID,
		SignatureID:  m.SignatureID,
		SizeBytes:    m.SizeBytes,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}
