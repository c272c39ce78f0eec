package provision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	tablePrefix = "letter_rows_"

	// Postgres truncates identifiers beyond 63 bytes, which would silently
	// alias two distinct keys. Reject instead.
	maxIdentifierLength = 63

	columnRetryAttempts = 3
	columnRetryBackoff  = 100 * time.Millisecond
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedColumns are owned by the row table itself; a field key colliding
// with one is stored under a prefixed column instead.
var reservedColumns = map[string]struct{}{
	"id":         {},
	"entity_key": {},
	"created_at": {},
	"updated_at": {},
}

// TableStore executes schema and row operations against a letter type's
// physical row table. Implementations must make EnsureTable and EnsureColumn
// idempotent.
type TableStore interface {
	EnsureTable(ctx context.Context, table string) error
	EnsureColumn(ctx context.Context, table, column string) error
	ListColumns(ctx context.Context, letterTypeID string) (map[string]string, error)
	RecordColumn(ctx context.Context, letterTypeID, fieldKey, column string) error
	UpsertRow(ctx context.Context, table, entityKey string, values map[string]string) error
	GetRow(ctx context.Context, table string, columns map[string]string, entityKey string) (map[string]string, error)
}

// Provisioner keeps each letter type's physical row table in sync with its
// field definitions. Columns are only ever added; schema work for the same
// letter type is serialized in-process by a keyed mutex, and cross-process
// races are absorbed by idempotent DDL plus a bounded retry.
type Provisioner struct {
	store  TableStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProvisioner(store TableStore, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Provisioner) lockFor(letterTypeID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[letterTypeID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[letterTypeID] = lock
	}
	return lock
}

// TableName derives the physical row table name for a type key.
func TableName(typeKey string) (string, error) {
	if err := domain.ValidateTypeKey(typeKey); err != nil {
		return "", err
	}
	name := tablePrefix + domain.NormalizeKey(typeKey)
	if err := checkIdentifier(name); err != nil {
		return "", err
	}
	return name, nil
}

// ColumnName derives the physical column name for a field key. Keys that
// collide with table-owned columns are prefixed.
func ColumnName(fieldKey string) (string, error) {
	key := domain.NormalizeKey(fieldKey)
	if _, reserved := reservedColumns[key]; reserved {
		key = "field_" + key
	}
	if err := checkIdentifier(key); err != nil {
		return "", err
	}
	return key, nil
}

func checkIdentifier(name string) error {
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: identifier %q exceeds %d bytes", domain.ErrValidation, name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: identifier %q must match %s", domain.ErrValidation, name, identifierPattern.String())
	}
	return nil
}

// EnsureSchema makes the letter type's row table exist with a column for
// every field definition. Safe to call repeatedly; already provisioned
// columns are skipped using the provisioned_columns metadata.
func (p *Provisioner) EnsureSchema(ctx context.Context, lt *domain.LetterType) error {
	if lt == nil {
		return fmt.Errorf("%w: letter type is required", domain.ErrValidation)
	}

	table, err := TableName(lt.TypeKey)
	if err != nil {
		return err
	}

	lock := p.lockFor(lt.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.store.EnsureTable(ctx, table); err != nil {
		return fmt.Errorf("%w: ensure table %q: %v", domain.ErrProvisioningConflict, table, err)
	}

	existing, err := p.store.ListColumns(ctx, lt.ID)
	if err != nil {
		return err
	}

	for i := range lt.Fields {
		field := &lt.Fields[i]
		key := domain.NormalizeKey(field.FieldKey)
		if _, ok := existing[key]; ok {
			continue
		}

		column, err := ColumnName(field.FieldKey)
		if err != nil {
			return err
		}

		if err := p.ensureColumnWithRetry(ctx, table, column); err != nil {
			return err
		}
		if err := p.store.RecordColumn(ctx, lt.ID, key, column); err != nil {
			return err
		}

		p.logger.Info("provisioned column",
			zap.String("letterTypeId", lt.ID),
			zap.String("table", table),
			zap.String("column", column),
		)
	}

	return nil
}

func (p *Provisioner) ensureColumnWithRetry(ctx context.Context, table, column string) error {
	var lastErr error
	for attempt := 0; attempt < columnRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(columnRetryBackoff * time.Duration(attempt)):
			}
		}

		if lastErr = p.store.EnsureColumn(ctx, table, column); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: add column %q to %q: %v", domain.ErrProvisioningConflict, column, table, lastErr)
}

// columnMap resolves fieldKey -> physical column for the letter type's
// currently provisioned columns.
func (p *Provisioner) columnMap(ctx context.Context, lt *domain.LetterType) (map[string]string, error) {
	columns, err := p.store.ListColumns(ctx, lt.ID)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: letter type %q has no provisioned columns", domain.ErrProvisioningConflict, lt.TypeKey)
	}
	return columns, nil
}

// UpsertRow writes one entity's field values into the row table, creating or
// replacing the row keyed by entityKey. Values are validated against the
// field rules and the storage width before any SQL runs.
func (p *Provisioner) UpsertRow(ctx context.Context, lt *domain.LetterType, entityKey string, values map[string]string) error {
	if lt == nil {
		return fmt.Errorf("%w: letter type is required", domain.ErrValidation)
	}
	if strings.TrimSpace(entityKey) == "" {
		return fmt.Errorf("%w: entity key is required", domain.ErrValidation)
	}

	table, err := TableName(lt.TypeKey)
	if err != nil {
		return err
	}

	columns, err := p.columnMap(ctx, lt)
	if err != nil {
		return err
	}

	fieldsByKey := make(map[string]*domain.FieldDefinition, len(lt.Fields))
	for i := range lt.Fields {
		fieldsByKey[domain.NormalizeKey(lt.Fields[i].FieldKey)] = &lt.Fields[i]
	}

	row := make(map[string]string, len(values))
	for rawKey, value := range values {
		key := domain.NormalizeKey(rawKey)
		column, ok := columns[key]
		if !ok {
			return fmt.Errorf("%w: field %q is not provisioned for type %q", domain.ErrValidation, rawKey, lt.TypeKey)
		}
		if field, ok := fieldsByKey[key]; ok {
			if err := field.CheckValue(value); err != nil {
				return err
			}
		}
		if len([]rune(value)) > domain.MaxFieldValueLength {
			return fmt.Errorf("%w: field %q value exceeds %d characters", domain.ErrValidation, rawKey, domain.MaxFieldValueLength)
		}
		row[column] = value
	}

	if len(row) == 0 {
		return fmt.Errorf("%w: no field values provided", domain.ErrValidation)
	}

	return p.store.UpsertRow(ctx, table, strings.TrimSpace(entityKey), row)
}

// GetRow loads one entity's field values keyed by field key. Missing rows
// surface as domain.ErrNotFound from the store.
func (p *Provisioner) GetRow(ctx context.Context, lt *domain.LetterType, entityKey string) (map[string]string, error) {
	if lt == nil {
		return nil, fmt.Errorf("%w: letter type is required", domain.ErrValidation)
	}

	table, err := TableName(lt.TypeKey)
	if err != nil {
		return nil, err
	}

	columns, err := p.columnMap(ctx, lt)
	if err != nil {
		return nil, err
	}

	return p.store.GetRow(ctx, table, columns, strings.TrimSpace(entityKey))
}
