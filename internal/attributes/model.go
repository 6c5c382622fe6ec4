package attributes

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxOwnerIDLength  = 190
	maxCategoryLength = 50
	maxNameLength     = 190
	maxValueLength    = 255
)

var (
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("attributes: invalid owner id")
	// ErrInvalidResource indicates that a record is not bound to a resource collection.
	ErrInvalidResource = errors.New("attributes: invalid resource")
	// ErrInvalidCategory indicates that a category grouping key is empty or exceeds storage bounds.
	ErrInvalidCategory = errors.New("attributes: invalid category")
	// ErrInvalidName indicates that an attribute name is empty or exceeds storage bounds.
	ErrInvalidName = errors.New("attributes: invalid attribute name")
	// ErrInvalidValue indicates that an attribute value is empty or exceeds storage bounds.
	ErrInvalidValue = errors.New("attributes: invalid attribute value")
)

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxOwnerIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxOwnerIDLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// AttributeRecord models one persisted (category, name, value) triple scoped to an owner.
// Resource separates independent collections (metrics, muscles) sharing the table, so a
// replace of one never touches the other. Records are only ever created as part of a
// full replace and are never updated in place.
type AttributeRecord struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_attribute_owner_resource,priority:1" json:"-"`
	Resource         string `gorm:"column:resource;size:32;not null;index:idx_attribute_owner_resource,priority:2" json:"-"`
	Category         string `gorm:"column:category;size:50;not null" json:"category"`
	Name             string `gorm:"column:name;size:190;not null" json:"name"`
	Value            string `gorm:"column:value;size:255;not null" json:"value"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (AttributeRecord) TableName() string {
	return "attribute_records"
}

func (r AttributeRecord) validate() error {
	if strings.TrimSpace(r.OwnerID) == "" || len(r.OwnerID) > maxOwnerIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidOwnerID, r.OwnerID)
	}
	if strings.TrimSpace(r.Resource) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidResource)
	}
	if strings.TrimSpace(r.Category) == "" || len(r.Category) > maxCategoryLength {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if strings.TrimSpace(r.Name) == "" || len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: category %q", ErrInvalidName, r.Category)
	}
	if strings.TrimSpace(r.Value) == "" || len(r.Value) > maxValueLength {
		return fmt.Errorf("%w: %s/%s", ErrInvalidValue, r.Category, r.Name)
	}
	return nil
}

// Snapshot is the complete categorized payload submitted in one request:
// category name to attribute name to value.
type Snapshot map[string]map[string]string

// Decompose flattens a snapshot into the records persisted for the owner.
// Attributes with empty values are skipped rather than rejected, matching the
// write endpoint's tolerance for half-filled wizard steps. Iteration order is
// not significant; the store groups by category on read.
func Decompose(ownerID OwnerID, snapshot Snapshot) []AttributeRecord {
	records := make([]AttributeRecord, 0, len(snapshot))
	for category, values := range snapshot {
		for name, value := range values {
			if strings.TrimSpace(value) == "" {
				continue
			}
			records = append(records, AttributeRecord{
				OwnerID:  ownerID.String(),
				Category: category,
				Name:     name,
				Value:    value,
			})
		}
	}
	return records
}

// Selection is one named entity chosen within a category, e.g. a muscle with a
// stable identifier and a display name.
type Selection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SnapshotFromSelections converts categorized selection lists into a Snapshot.
// Duplicate ids within one category collapse last-wins; the store itself does
// not deduplicate.
func SnapshotFromSelections(selections map[string][]Selection) Snapshot {
	snapshot := make(Snapshot, len(selections))
	for category, items := range selections {
		if len(items) == 0 {
			continue
		}
		values := make(map[string]string, len(items))
		for _, item := range items {
			values[item.ID] = item.Name
		}
		snapshot[category] = values
	}
	return snapshot
}

// Grouped is the read-side shape: records keyed by their category.
type Grouped map[string][]AttributeRecord

// ToSnapshot collapses grouped records back into the snapshot wire format.
func (g Grouped) ToSnapshot() Snapshot {
	snapshot := make(Snapshot, len(g))
	for category, records := range g {
		values := make(map[string]string, len(records))
		for _, record := range records {
			values[record.Name] = record.Value
		}
		snapshot[category] = values
	}
	return snapshot
}

// FlattenValues returns every stored value across categories, e.g. the muscle
// display names frozen into a workout.
func (g Grouped) FlattenValues() []string {
	values := make([]string, 0)
	for _, records := range g {
		for _, record := range records {
			values = append(values, record.Value)
		}
	}
	return values
}
