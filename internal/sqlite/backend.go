package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "daybook.db"

// Backend owns the SQLite connection that holds every collection's records.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens (or creates) the database in config.DataDir and applies the
// schema. Returns types.ErrAlreadyOpen if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyOpen
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DatabaseFile))
	if err != nil {
		return fmt.Errorf("opening database: %w: %w", types.ErrStoreUnavailable, err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying pragma: %w: %w", types.ErrStoreUnavailable, err)
		}
	}
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w: %w", types.ErrStoreUnavailable, err)
		}
	}

	b.db = db
	b.config = config
	b.config.DataDir = dataDir
	b.attached = true
	return nil
}

// Detach closes the database. Idempotent. After Detach every collection
// operation fails with types.ErrStoreUnavailable.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		return err
	}
	return nil
}

// DataDir returns the directory the backend is attached to.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.DataDir
}

// Collection returns the primary store for name. The handle is valid across
// Detach/Attach cycles of the same backend.
func (b *Backend) Collection(name string) (*Collection, error) {
	if !types.ValidCollection(name) {
		return nil, types.ErrCollectionInvalid
	}
	return &Collection{backend: b, name: name}, nil
}

// Collections lists the names of collections holding at least one record.
func (b *Backend) Collections(ctx context.Context) ([]string, error) {
	db, unlock, err := b.conn("listing collections")
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := db.QueryContext(ctx, "SELECT DISTINCT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, unavailable("listing collections", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable("scanning collection", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating collections", err)
	}
	return names, nil
}

// conn returns the open database with the read lock held. The caller must
// call unlock when done.
func (b *Backend) conn(op string) (*sql.DB, func(), error) {
	b.mu.RLock()
	if !b.attached || b.db == nil {
		b.mu.RUnlock()
		return nil, nil, fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, types.ErrStoreClosed)
	}
	return b.db, b.mu.RUnlock, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, err)
}
