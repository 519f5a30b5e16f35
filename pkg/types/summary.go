package types

// Summary buckets used when a record leaves Category or Status empty.
const (
	UncategorizedBucket = "uncategorized"
	NoStatusBucket      = "none"
)

// Summary aggregates the records of one day or an inclusive range of days.
// It is derived on every request and never stored.
type Summary struct {
	From       DateKey        `json:"from"`
	To         DateKey        `json:"to"`
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	ByStatus   map[string]int `json:"by_status"`
}
