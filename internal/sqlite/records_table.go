package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Compile-time interface checks.
var (
	_ types.PrimaryStore = (*Collection)(nil)
	_ types.RangeReader  = (*Collection)(nil)
)

// Collection is the primary store for one collection. Each operation
// hydrates or dehydrates between SQLite rows and *types.Record.
type Collection struct {
	backend *Backend
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// GetAll returns every record of the collection.
func (c *Collection) GetAll(ctx context.Context) ([]*types.Record, error) {
	return c.query(ctx, "getting all records",
		"SELECT "+recordColumns+" FROM records WHERE collection = ?",
		c.name,
	)
}

// GetBetween returns the records with start <= At < end through the
// records_by_at index. Stored times sort as text only to the second, so
// the query is widened by a second each way and the result filtered.
func (c *Collection) GetBetween(ctx context.Context, start, end time.Time) ([]*types.Record, error) {
	if !start.Before(end) {
		return []*types.Record{}, nil
	}
	lo := start.Truncate(time.Second).Add(-time.Second)
	hi := end.Truncate(time.Second).Add(time.Second)
	recs, err := c.query(ctx, "getting records by time",
		"SELECT "+recordColumns+" FROM records WHERE collection = ? AND at >= ? AND at < ?",
		c.name, formatTime(lo), formatTime(hi),
	)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if !rec.At.Before(start) && rec.At.Before(end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Collection) query(ctx context.Context, op, stmt string, args ...any) ([]*types.Record, error) {
	db, unlock, err := c.backend.conn(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, unavailable("querying records", err)
	}
	defer rows.Close()

	records := []*types.Record{}
	for rows.Next() {
		rec, err := c.hydrate(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating records", err)
	}
	return records, nil
}

// Get retrieves a record by id. Returns types.ErrNotFound if absent.
func (c *Collection) Get(ctx context.Context, id string) (*types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, unlock, err := c.backend.conn("getting record")
	if err != nil {
		return nil, err
	}
	defer unlock()

	row := db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE collection = ? AND record_id = ?",
		c.name, id,
	)
	rec, err := c.hydrate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put inserts or replaces the record stored under rec.ID.
func (c *Collection) Put(ctx context.Context, rec *types.Record) error {
	if rec == nil {
		return types.ErrInvalidData
	}
	if rec.ID == "" {
		return types.ErrInvalidID
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshaling data for record %s: %w: %w", rec.ID, types.ErrInvalidData, err)
	}
	if rec.Data == nil {
		data = []byte("{}")
	}

	db, unlock, err := c.backend.conn("putting record")
	if err != nil {
		return err
	}
	defer unlock()

	_, err = db.ExecContext(ctx,
		`INSERT INTO records (collection, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, record_id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			status = excluded.status,
			group_id = excluded.group_id,
			at = excluded.at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		c.name, rec.ID, rec.Title, rec.Category, rec.Status, rec.GroupID,
		formatTime(rec.At), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), string(data),
	)
	if err != nil {
		return unavailable("persisting record "+rec.ID, err)
	}
	return nil
}

// Delete removes a record. Deleting an absent id succeeds.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	db, unlock, err := c.backend.conn("deleting record")
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND record_id = ?",
		c.name, id,
	); err != nil {
		return unavailable("deleting record "+id, err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// hydrate converts one row into a *types.Record. sql.ErrNoRows is returned
// unwrapped; other failures wrap types.ErrStoreUnavailable.
func (c *Collection) hydrate(row scanner) (*types.Record, error) {
	var r types.Record
	var at, createdAt, updatedAt, data string
	err := row.Scan(&r.ID, &r.Title, &r.Category, &r.Status, &r.GroupID, &at, &createdAt, &updatedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("scanning record", err)
	}
	r.Collection = c.name
	if r.At, err = parseTime(at); err != nil {
		return nil, fmt.Errorf("parsing at of record %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of record %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at of record %s: %w", r.ID, err)
	}
	if data != "" && data != "{}" && data != "null" {
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("parsing data of record %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
