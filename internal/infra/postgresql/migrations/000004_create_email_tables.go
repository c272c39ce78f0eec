package migrations

import (
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createGeneratedDocumentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_generated_documents",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.GeneratedDocumentModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_generated_documents_type_entity ON generated_documents (letter_type_id, entity_key)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.GeneratedDocumentModel{})
		},
	}
}

func createEmailBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_email_batches",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.EmailBatchModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.EmailBatchModel{})
		},
	}
}

func createEmailJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_email_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.EmailJobModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_email_jobs_batch_id ON email_jobs (batch_id)`,
				`CREATE INDEX IF NOT EXISTS idx_email_jobs_status_created ON email_jobs (status, created_at)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_email_jobs_provider_message_id ON email_jobs (provider_message_id) WHERE provider_message_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_email_jobs_tracking_id ON email_jobs (tracking_id)`,
				`CREATE INDEX IF NOT EXISTS idx_email_jobs_retry ON email_jobs (next_retry_at) WHERE status = 'QUEUED'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.EmailJobModel{})
		},
	}
}

func createWebhookEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000007_create_webhook_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookEventModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_events_provider_event_id ON webhook_events (provider_event_id)`,
				`CREATE INDEX IF NOT EXISTS idx_webhook_events_provider_message_id ON webhook_events (provider_message_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookEventModel{})
		},
	}
}
