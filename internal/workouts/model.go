package workouts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxWorkoutNameLength = 255

var (
	// ErrInvalidWorkoutName indicates that a workout name is empty or exceeds storage bounds.
	ErrInvalidWorkoutName = errors.New("workouts: invalid workout name")
)

// WorkoutRecord models a persisted workout. MuscleSnapshotJSON freezes the
// owner's muscle display names at creation time: later replacements of the
// owner's muscle records never alter a past workout.
type WorkoutRecord struct {
	ID                 uint   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	WorkoutID          string `gorm:"column:workout_id;size:190;not null;uniqueIndex" json:"id"`
	OwnerID            string `gorm:"column:owner_id;size:190;not null;index" json:"-"`
	Name               string `gorm:"column:name;size:255;not null" json:"name"`
	Description        string `gorm:"column:description;type:text" json:"description"`
	MuscleSnapshotJSON string `gorm:"column:muscle_snapshot;type:text;not null" json:"-"`
	Active             bool   `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAtSeconds   int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (WorkoutRecord) TableName() string {
	return "workouts"
}

// MuscleNames decodes the frozen snapshot.
func (w WorkoutRecord) MuscleNames() ([]string, error) {
	if strings.TrimSpace(w.MuscleSnapshotJSON) == "" {
		return []string{}, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(w.MuscleSnapshotJSON), &names); err != nil {
		return nil, fmt.Errorf("workouts: decode muscle snapshot: %w", err)
	}
	return names, nil
}

func encodeMuscleSnapshot(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("workouts: encode muscle snapshot: %w", err)
	}
	return string(encoded), nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidWorkoutName)
	}
	if len(trimmed) > maxWorkoutNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidWorkoutName, maxWorkoutNameLength)
	}
	return nil
}
