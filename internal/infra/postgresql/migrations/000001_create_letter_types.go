package migrations

import (
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createLetterTypesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_letter_types",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.LetterTypeModel{}); err != nil {
				return err
			}
			// Case-insensitive uniqueness for type keys.
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_letter_types_type_key_lower ON letter_types (LOWER(type_key))`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.LetterTypeModel{})
		},
	}
}

func createFieldDefinitionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_field_definitions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FieldDefinitionModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_field_definitions_type_key_lower ON field_definitions (letter_type_id, LOWER(field_key))`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.FieldDefinitionModel{})
		},
	}
}

func createProvisionedColumnsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_provisioned_columns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProvisionedColumnModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_provisioned_columns_type_field ON provisioned_columns (letter_type_id, field_key)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProvisionedColumnModel{})
		},
	}
}
