// Package wizard holds the client-side draft state for a multi-step
// categorized input flow. Drafts live in memory until the caller builds a
// snapshot and hands it to a submission client; nothing here performs I/O.
package wizard

import (
	"errors"
	"fmt"
	"strings"
)

// Phase enumerates the aggregator's explicit states.
type Phase int

const (
	// PhaseIdle is the initial state, before the wizard opens.
	PhaseIdle Phase = iota
	// PhaseSelectingCategory is the category picker between editing steps.
	PhaseSelectingCategory
	// PhaseEditingCategory is an open editing step for one category.
	PhaseEditingCategory
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelectingCategory:
		return "selecting_category"
	case PhaseEditingCategory:
		return "editing_category"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrEmptyDraft indicates a step was finished without a single filled field.
	ErrEmptyDraft = errors.New("wizard: category draft has no filled fields")
	// ErrInvalidCategory indicates an empty category name.
	ErrInvalidCategory = errors.New("wizard: category name is required")
	// ErrNotEditing indicates an editing operation outside PhaseEditingCategory.
	ErrNotEditing = errors.New("wizard: no category is being edited")
	// ErrAlreadyEditing indicates StartCategory while a step is already open.
	ErrAlreadyEditing = errors.New("wizard: a category is already being edited")
)

// Aggregator accumulates per-category drafts across wizard steps and
// reconciles them into one snapshot. Not safe for concurrent use; it models
// a single user's session.
type Aggregator struct {
	phase     Phase
	editing   string
	draft     map[string]string
	completed map[string]map[string]string
}

// New returns an empty aggregator in PhaseIdle.
func New() *Aggregator {
	return &Aggregator{
		phase:     PhaseIdle,
		completed: make(map[string]map[string]string),
	}
}

// Phase reports the current state.
func (a *Aggregator) Phase() Phase {
	return a.phase
}

// Open moves the wizard from idle to category selection.
func (a *Aggregator) Open() {
	if a.phase == PhaseIdle {
		a.phase = PhaseSelectingCategory
	}
}

// StartCategory opens an editing step for the category. A previously
// completed draft for the category is loaded for re-editing.
func (a *Aggregator) StartCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return ErrInvalidCategory
	}
	if a.phase == PhaseEditingCategory {
		return ErrAlreadyEditing
	}

	a.phase = PhaseEditingCategory
	a.editing = category
	a.draft = make(map[string]string)
	for name, value := range a.completed[category] {
		a.draft[name] = value
	}
	return nil
}

// SetField records one field of the in-progress draft.
func (a *Aggregator) SetField(name, value string) error {
	if a.phase != PhaseEditingCategory {
		return ErrNotEditing
	}
	a.draft[name] = value
	return nil
}

// FinishCategory persists the in-progress draft and marks the category
// completed. At least one field must be non-empty; empty fields are dropped.
func (a *Aggregator) FinishCategory() error {
	if a.phase != PhaseEditingCategory {
		return ErrNotEditing
	}

	kept := make(map[string]string, len(a.draft))
	for name, value := range a.draft {
		if strings.TrimSpace(value) == "" {
			continue
		}
		kept[name] = value
	}
	if len(kept) == 0 {
		return ErrEmptyDraft
	}

	a.completed[a.editing] = kept
	a.closeStep()
	return nil
}

// CancelCategory discards the in-progress draft without marking completion.
// A previously completed draft for the category is left untouched.
func (a *Aggregator) CancelCategory() error {
	if a.phase != PhaseEditingCategory {
		return ErrNotEditing
	}
	a.closeStep()
	return nil
}

// RecordCategory stores a whole category draft in one call, overwriting any
// prior draft for that category. Values must contain at least one non-empty
// field.
func (a *Aggregator) RecordCategory(category string, values map[string]string) error {
	if strings.TrimSpace(category) == "" {
		return ErrInvalidCategory
	}

	kept := make(map[string]string, len(values))
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		kept[name] = value
	}
	if len(kept) == 0 {
		return ErrEmptyDraft
	}

	a.completed[category] = kept
	if a.phase == PhaseIdle {
		a.phase = PhaseSelectingCategory
	}
	return nil
}

// IsAnyCategoryComplete gates final submission: at least one category must
// hold at least one field.
func (a *Aggregator) IsAnyCategoryComplete() bool {
	return len(a.completed) > 0
}

// CompletedCategories lists the categories with stored drafts.
func (a *Aggregator) CompletedCategories() []string {
	categories := make([]string, 0, len(a.completed))
	for category := range a.completed {
		categories = append(categories, category)
	}
	return categories
}

// BuildSnapshot flattens every completed category into the wire format.
// Categories without a completed draft are omitted entirely. The returned
// maps are copies; mutating them does not affect the aggregator.
func (a *Aggregator) BuildSnapshot() map[string]map[string]string {
	snapshot := make(map[string]map[string]string, len(a.completed))
	for category, values := range a.completed {
		copied := make(map[string]string, len(values))
		for name, value := range values {
			copied[name] = value
		}
		snapshot[category] = copied
	}
	return snapshot
}

// Reset clears all drafts and completion state, returning to PhaseIdle.
// Called when the wizard is abandoned or after a terminal submission.
func (a *Aggregator) Reset() {
	a.phase = PhaseIdle
	a.editing = ""
	a.draft = nil
	a.completed = make(map[string]map[string]string)
}

func (a *Aggregator) closeStep() {
	a.phase = PhaseSelectingCategory
	a.editing = ""
	a.draft = nil
}
