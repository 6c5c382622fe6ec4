package attributes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resource names an independent attribute collection sharing the store table.
type Resource string

const (
	// ResourceMetrics holds body measurement attributes.
	ResourceMetrics Resource = "metrics"
	// ResourceMuscles holds selected muscle groups.
	ResourceMuscles Resource = "muscles"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingOwnerID  = errors.New("owner identifier is required")
	errMissingResource = errors.New("resource name is required")
	noOpLogger         = zap.NewNop()
)

// StoreError carries an operation-scoped failure code alongside its cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew      = "attributes.store.new"
	opReplaceAll    = "attributes.replace_all"
	opListGrouped   = "attributes.list_grouped"
	reasonBadRecord = "invalid_record"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// StoreConfig describes the dependencies required by the attribute store.
type StoreConfig struct {
	Database *gorm.DB
	Resource Resource
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists categorized attribute records for one resource collection
// with replace-all write semantics.
type Store struct {
	db       *gorm.DB
	resource Resource
	clock    func() time.Time
	logger   *zap.Logger
}

// NewStore constructs a Store bound to a single resource collection.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.Resource == "" {
		return nil, newStoreError(opStoreNew, "missing_resource", errMissingResource)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{db: cfg.Database, resource: cfg.Resource, clock: clock, logger: logger}, nil
}

// WithDatabase returns a copy of the store bound to the provided handle.
// Callers use it to run store reads inside an enclosing transaction.
func (s *Store) WithDatabase(db *gorm.DB) *Store {
	if db == nil {
		return s
	}
	return &Store{db: db, resource: s.resource, clock: s.clock, logger: s.logger}
}

// ReplaceAll atomically replaces every record belonging to the owner with the
// provided records. The delete and all inserts run in a single transaction:
// a failure on any insert rolls the whole operation back and leaves the
// pre-call state untouched. An empty records slice clears the owner entirely.
// Returns the number of records inserted.
func (s *Store) ReplaceAll(ctx context.Context, ownerID OwnerID, records []AttributeRecord) (int, error) {
	if ownerID.String() == "" {
		s.logError(opReplaceAll, "missing_owner_id", errMissingOwnerID)
		return 0, newStoreError(opReplaceAll, "missing_owner_id", errMissingOwnerID)
	}

	// Validate before touching the database so a malformed snapshot never
	// opens a transaction.
	for index := range records {
		records[index].OwnerID = ownerID.String()
		records[index].Resource = string(s.resource)
		if err := records[index].validate(); err != nil {
			s.logError(opReplaceAll, reasonBadRecord, err, zap.String("owner_id", ownerID.String()))
			return 0, newStoreError(opReplaceAll, reasonBadRecord, err)
		}
	}

	createdAt := s.clock().UTC().Unix()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND resource = ?", ownerID.String(), string(s.resource)).
			Delete(&AttributeRecord{}).Error; err != nil {
			s.logError(opReplaceAll, "delete_failed", err, zap.String("owner_id", ownerID.String()))
			return newStoreError(opReplaceAll, "delete_failed", err)
		}
		for index := range records {
			records[index].ID = 0
			records[index].CreatedAtSeconds = createdAt
			if err := tx.Create(&records[index]).Error; err != nil {
				s.logError(opReplaceAll, "insert_failed", err,
					zap.String("owner_id", ownerID.String()),
					zap.String("category", records[index].Category),
					zap.String("name", records[index].Name))
				return newStoreError(opReplaceAll, "insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	s.logger.Info("attribute records replaced",
		zap.String("owner_id", ownerID.String()),
		zap.String("resource", string(s.resource)),
		zap.Int("saved_count", len(records)))
	return len(records), nil
}

// ListGroupedByCategory returns the owner's records keyed by category. An
// owner with no records yields an empty map, never an error.
func (s *Store) ListGroupedByCategory(ctx context.Context, ownerID OwnerID) (Grouped, error) {
	if ownerID.String() == "" {
		s.logError(opListGrouped, "missing_owner_id", errMissingOwnerID)
		return nil, newStoreError(opListGrouped, "missing_owner_id", errMissingOwnerID)
	}

	var records []AttributeRecord
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND resource = ?", ownerID.String(), string(s.resource)).
		Order("id ASC").
		Find(&records).Error; err != nil {
		s.logError(opListGrouped, "query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newStoreError(opListGrouped, "query_failed", err)
	}

	grouped := make(Grouped)
	for _, record := range records {
		grouped[record.Category] = append(grouped[record.Category], record)
	}
	return grouped, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("attribute store error", attrs...)
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
