package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonusapp/tonus/backend/internal/attributes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingMuscleStore = errors.New("muscle store is required")
	errMissingIDProvider  = errors.New("id provider is required")
	noOpLogger            = zap.NewNop()
)

// ComposerError carries an operation-scoped failure code alongside its cause.
type ComposerError struct {
	code string
	err  error
}

func (e *ComposerError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ComposerError) Unwrap() error {
	return e.err
}

func (e *ComposerError) Code() string {
	return e.code
}

const (
	opComposerNew   = "workouts.composer.new"
	opCreateWorkout = "workouts.create"
	opListWorkouts  = "workouts.list"
)

func newComposerError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ComposerError{code: code, err: cause}
}

// IDProvider issues public workout identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ComposerConfig describes the dependencies required by the workout composer.
type ComposerConfig struct {
	Database    *gorm.DB
	MuscleStore *attributes.Store
	Clock       func() time.Time
	IDProvider  IDProvider
	Logger      *zap.Logger
}

// Composer creates workout records that freeze the owner's current muscle
// snapshot at creation time.
type Composer struct {
	db          *gorm.DB
	muscleStore *attributes.Store
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
}

// NewComposer constructs a Composer.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Database == nil {
		return nil, newComposerError(opComposerNew, "missing_database", errMissingDatabase)
	}
	if cfg.MuscleStore == nil {
		return nil, newComposerError(opComposerNew, "missing_muscle_store", errMissingMuscleStore)
	}
	if cfg.IDProvider == nil {
		return nil, newComposerError(opComposerNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Composer{
		db:          cfg.Database,
		muscleStore: cfg.MuscleStore,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
	}, nil
}

// CreateWorkout reads the owner's current muscle snapshot and persists a new
// active workout carrying a frozen copy of the flattened muscle names. The
// read and the insert share one transaction so the frozen copy can never
// straddle a concurrent replace.
func (c *Composer) CreateWorkout(ctx context.Context, ownerID attributes.OwnerID, name, description string) (WorkoutRecord, error) {
	if ownerID.String() == "" {
		return WorkoutRecord{}, newComposerError(opCreateWorkout, "missing_owner_id", attributes.ErrInvalidOwnerID)
	}
	if err := validateName(name); err != nil {
		c.logError(opCreateWorkout, "invalid_name", err, zap.String("owner_id", ownerID.String()))
		return WorkoutRecord{}, newComposerError(opCreateWorkout, "invalid_name", err)
	}

	workoutID, err := c.idProvider.NewID()
	if err != nil {
		c.logError(opCreateWorkout, "id_generation_failed", err, zap.String("owner_id", ownerID.String()))
		return WorkoutRecord{}, newComposerError(opCreateWorkout, "id_generation_failed", err)
	}

	var record WorkoutRecord
	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grouped, err := c.muscleStore.WithDatabase(tx).ListGroupedByCategory(ctx, ownerID)
		if err != nil {
			c.logError(opCreateWorkout, "muscle_read_failed", err, zap.String("owner_id", ownerID.String()))
			return newComposerError(opCreateWorkout, "muscle_read_failed", err)
		}

		snapshotJSON, err := encodeMuscleSnapshot(grouped.FlattenValues())
		if err != nil {
			c.logError(opCreateWorkout, "snapshot_encode_failed", err, zap.String("owner_id", ownerID.String()))
			return newComposerError(opCreateWorkout, "snapshot_encode_failed", err)
		}

		record = WorkoutRecord{
			WorkoutID:          workoutID,
			OwnerID:            ownerID.String(),
			Name:               name,
			Description:        description,
			MuscleSnapshotJSON: snapshotJSON,
			Active:             true,
			CreatedAtSeconds:   c.clock().UTC().Unix(),
		}
		if err := tx.Create(&record).Error; err != nil {
			c.logError(opCreateWorkout, "insert_failed", err,
				zap.String("owner_id", ownerID.String()),
				zap.String("workout_id", workoutID))
			return newComposerError(opCreateWorkout, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return WorkoutRecord{}, txErr
	}

	c.logger.Info("workout created",
		zap.String("owner_id", ownerID.String()),
		zap.String("workout_id", record.WorkoutID))
	return record, nil
}

// ListWorkouts returns the owner's active workouts, newest first.
func (c *Composer) ListWorkouts(ctx context.Context, ownerID attributes.OwnerID) ([]WorkoutRecord, error) {
	if ownerID.String() == "" {
		return nil, newComposerError(opListWorkouts, "missing_owner_id", attributes.ErrInvalidOwnerID)
	}

	var records []WorkoutRecord
	if err := c.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID.String(), true).
		Order("created_at_s DESC").
		Find(&records).Error; err != nil {
		c.logError(opListWorkouts, "query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newComposerError(opListWorkouts, "query_failed", err)
	}
	return records, nil
}

func (c *Composer) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("workout composer error", attrs...)
}
