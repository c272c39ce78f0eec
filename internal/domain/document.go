package domain

import "time"

// GeneratedDocument is the stored output of one renderer call: the merged
// letter for one entity, kept as the attachment source and audit record.
type GeneratedDocument struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	LetterTypeID string `gorm:"type:uuid;not null"`
	EntityKey    string `gorm:"type:varchar(128);not null"`
	TemplateID   string `gorm:"type:varchar(128);not null"`
	SignatureID  *string
	SizeBytes    int64  `gorm:"not null"`
	Content      []byte `gorm:"type:bytea"`
	CreatedAt    time.Time
}
