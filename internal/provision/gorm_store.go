package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTableStore runs provisioning DDL and row access against Postgres.
// Identifiers are validated by the provisioner before they reach this layer,
// but every method re-checks them since identifiers cannot be bound as SQL
// parameters.
type GormTableStore struct {
	db *gorm.DB
}

func NewGormTableStore(db *gorm.DB) *GormTableStore {
	return &GormTableStore{db: db}
}

func (s *GormTableStore) EnsureTable(ctx context.Context, table string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id uuid PRIMARY KEY,
		entity_key varchar(128) NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT %q UNIQUE (entity_key)
	)`, table, table+"_entity_key_uq")

	return s.db.WithContext(ctx).Exec(ddl).Error
}

func (s *GormTableStore) EnsureColumn(ctx context.Context, table, column string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	if err := checkIdentifier(column); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN IF NOT EXISTS %q varchar(%d)`,
		table, column, domain.MaxFieldValueLength)

	return s.db.WithContext(ctx).Exec(ddl).Error
}

func (s *GormTableStore) ListColumns(ctx context.Context, letterTypeID string) (map[string]string, error) {
	var models []repository.ProvisionedColumnModel
	err := s.db.WithContext(ctx).
		Where("letter_type_id = ?", letterTypeID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	columns := make(map[string]string, len(models))
	for i := range models {
		columns[models[i].FieldKey] = models[i].ColumnName
	}
	return columns, nil
}

func (s *GormTableStore) RecordColumn(ctx context.Context, letterTypeID, fieldKey, column string) error {
	model := repository.ProvisionedColumnModel{
		ID:           uuid.NewString(),
		LetterTypeID: letterTypeID,
		FieldKey:     fieldKey,
		ColumnName:   column,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "letter_type_id"}, {Name: "field_key"}},
			DoNothing: true,
		}).
		Create(&model).Error
}

func (s *GormTableStore) UpsertRow(ctx context.Context, table, entityKey string, values map[string]string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}

	row := make(map[string]any, len(values)+2)
	updateColumns := make([]string, 0, len(values)+1)
	for column, value := range values {
		if err := checkIdentifier(column); err != nil {
			return err
		}
		row[column] = value
		updateColumns = append(updateColumns, column)
	}
	row["id"] = uuid.NewString()
	row["entity_key"] = entityKey
	updateColumns = append(updateColumns, "updated_at")
	row["updated_at"] = gorm.Expr("now()")

	return s.db.WithContext(ctx).
		Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_key"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).
		Create(row).Error
}

func (s *GormTableStore) GetRow(ctx context.Context, table string, columns map[string]string, entityKey string) (map[string]string, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}

	selected := make([]string, 0, len(columns))
	columnToField := make(map[string]string, len(columns))
	for fieldKey, column := range columns {
		if err := checkIdentifier(column); err != nil {
			return nil, err
		}
		selected = append(selected, column)
		columnToField[column] = fieldKey
	}

	var raw map[string]any
	err := s.db.WithContext(ctx).
		Table(table).
		Select(selected).
		Where("entity_key = ?", entityKey).
		Take(&raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	row := make(map[string]string, len(raw))
	for column, value := range raw {
		fieldKey, ok := columnToField[column]
		if !ok {
			continue
		}
		if value == nil {
			row[fieldKey] = ""
			continue
		}
		row[fieldKey] = fmt.Sprintf("%v", value)
	}
	return row, nil
}
