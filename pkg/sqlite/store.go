// Package sqlite opens a daybook collection backed by SQLite, with its date
// and group indexes in a Pebble store next to the database.
//
// Example:
//
//	store, err := sqlite.Open(types.Config{
//	    Backend:    types.BackendSQLite,
//	    DataDir:    dir,
//	    Collection: "habits",
//	}, sqlite.Options{})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	recs, err := store.GetForDate(ctx, types.DateKeyOf(time.Now(), store.Location()))
package sqlite

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/daybook/internal/kv"
	"github.com/mesh-intelligence/daybook/internal/paths"
	"github.com/mesh-intelligence/daybook/internal/repository"
	"github.com/mesh-intelligence/daybook/internal/sqlite"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Options tunes Open. The zero value is usable.
type Options struct {
	// Logger receives repository events. Nil means slog.Default().
	Logger *slog.Logger

	// Now replaces the wall clock. Nil means time.Now.
	Now func() time.Time

	// Registerer, if set, receives the repository and index store metrics.
	Registerer prometheus.Registerer
}

// Store is one open collection. Every repository operation is available on
// it; Close releases the database and the index.
type Store struct {
	*repository.Repository

	backend *sqlite.Backend
	index   *kv.Store
	primary types.PrimaryStore
}

// Open attaches the SQLite database in config.DataDir, opens the index store
// beside it, and returns the repository of config's collection.
func Open(config types.Config, opts Options) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	loc, err := config.Location()
	if err != nil {
		return nil, err
	}

	s := &Store{backend: sqlite.NewBackend()}
	if err := s.backend.Attach(config); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	s.index, err = kv.Open(paths.IndexDir(s.backend.DataDir()))
	if err != nil {
		s.Close()
		return nil, err
	}
	primary, err := s.backend.Collection(config.GetCollection())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.primary = primary

	repoOpts := []repository.Option{
		repository.WithLocation(loc),
		repository.WithBootstrapDays(config.GetBootstrapDays()),
	}
	if opts.Logger != nil {
		repoOpts = append(repoOpts, repository.WithLogger(opts.Logger))
	}
	if opts.Now != nil {
		repoOpts = append(repoOpts, repository.WithClock(opts.Now))
	}
	if opts.Registerer != nil {
		metrics := repository.NewMetrics()
		if err := metrics.Register(opts.Registerer); err != nil {
			s.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		if err := opts.Registerer.Register(kv.NewCollector(s.index)); err != nil {
			s.Close()
			return nil, fmt.Errorf("register index metrics: %w", err)
		}
		repoOpts = append(repoOpts, repository.WithMetrics(metrics))
	}

	s.Repository, err = repository.New(config.GetCollection(), primary, s.index, repoOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Records returns the collection's SQLite store, bypassing the indexes.
func (s *Store) Records() types.PrimaryStore { return s.primary }

// DataDir returns the directory holding the database and the index.
func (s *Store) DataDir() string { return s.backend.DataDir() }

// Close releases the index store and the database. Idempotent.
func (s *Store) Close() error {
	var err error
	if s.index != nil {
		err = errors.Join(err, s.index.Close())
	}
	return errors.Join(err, s.backend.Detach())
}
