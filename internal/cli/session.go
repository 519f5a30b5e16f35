package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/daybook/internal/logging"
	"github.com/mesh-intelligence/daybook/internal/repository"
	sqlitestore "github.com/mesh-intelligence/daybook/pkg/sqlite"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// session is an open collection for one command. The caller must defer
// Close.
type session struct {
	config types.Config
	store  *sqlitestore.Store
	repo   *repository.Repository
	log    *slog.Logger
	reg    *prometheus.Registry

	closeLog func() error
}

// openSession opens the selected collection with a logger and a metrics
// registry built from the configuration.
func (a *app) openSession() (*session, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, err
	}

	log, closeLog := logging.New(a.cfg.GetString(cfgKeyLogLevel), a.stderr)
	s := &session{config: cfg, log: log, reg: prometheus.NewRegistry(), closeLog: closeLog}

	s.store, err = sqlitestore.Open(cfg, sqlitestore.Options{
		Logger:     log,
		Now:        a.now,
		Registerer: s.reg,
	})
	if err != nil {
		s.Close()
		if errors.Is(err, types.ErrCollectionInvalid) || errors.Is(err, types.ErrTimezoneUnknown) {
			return nil, err
		}
		return nil, sysErr(fmt.Errorf("open %s: %w", cfg.GetCollection(), err))
	}
	s.repo = s.store.Repository
	return s, nil
}

// Close releases the store and any log file.
func (s *session) Close() error {
	var err error
	if s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	if s.closeLog != nil {
		err = errors.Join(err, s.closeLog())
	}
	return err
}
