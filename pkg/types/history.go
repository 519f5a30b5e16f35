package types

import "time"

// HistoryStatus is the read-only view of how much of a collection's history
// the date index covers.
type HistoryStatus struct {
	Collection string `json:"collection"`

	// Bootstrapped is false until the first read or write on the collection.
	Bootstrapped bool `json:"bootstrapped"`

	// IndexedFrom and IndexedThrough bound the coverage window, inclusive.
	IndexedFrom    DateKey `json:"indexed_from,omitempty"`
	IndexedThrough DateKey `json:"indexed_through,omitempty"`

	Paused    bool      `json:"paused"`
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Covers reports whether key falls inside the coverage window.
func (s HistoryStatus) Covers(key DateKey) bool {
	if !s.Bootstrapped {
		return false
	}
	return !key.Before(s.IndexedFrom) && !key.After(s.IndexedThrough)
}
