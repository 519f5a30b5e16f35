package types

import (
	"errors"
	"regexp"
	"time"
)

// Standard collection names. Any name matching ValidCollection is accepted;
// these are the ones the CLI offers.
const (
	CollectionTasks       = "tasks"
	CollectionHabits      = "habits"
	CollectionCompletions = "completions"
	CollectionBehaviors   = "behaviors"
	CollectionFinances    = "finances"
	CollectionMoods       = "moods"
)

// StandardCollections lists the standard collection names for enumeration.
var StandardCollections = []string{
	CollectionTasks,
	CollectionHabits,
	CollectionCompletions,
	CollectionBehaviors,
	CollectionFinances,
	CollectionMoods,
}

var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// ValidCollection reports whether name can be used as a collection name.
func ValidCollection(name string) bool {
	return collectionPattern.MatchString(name)
}

// Record is the generic shape of every entity Daybook stores: a stable id, a
// primary date, and an optional owning group. Category and Status drive
// summaries; Data carries entity-specific fields the core never inspects.
type Record struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Title      string         `json:"title"`
	Category   string         `json:"category,omitempty"`
	Status     string         `json:"status,omitempty"`
	GroupID    string         `json:"group_id,omitempty"`
	At         time.Time      `json:"at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Record validation errors.
var (
	ErrInvalidID   = errors.New("invalid record ID")
	ErrInvalidData = errors.New("invalid record data")
	ErrMissingDate = errors.New("record date must be set")
	ErrDateRange   = errors.New("record date must fall in years 0001 to 9999")
)

// Validate checks the fields every collection requires.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidData
	}
	if r.At.IsZero() {
		return ErrMissingDate
	}
	if y := r.At.UTC().Year(); y < 1 || y > 9999 {
		return ErrDateRange
	}
	return nil
}

// DateKey returns the record's calendar day in loc.
func (r *Record) DateKey(loc *time.Location) DateKey {
	return DateKeyOf(r.At, loc)
}

// Clone returns a copy of r whose Data map is not shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Data != nil {
		c.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			c.Data[k] = v
		}
	}
	return &c
}
