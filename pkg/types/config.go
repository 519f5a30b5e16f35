package types

import (
	"errors"
	"time"
)

// Config holds backend selection and repository parameters.
type Config struct {
	Backend       string `json:"backend" yaml:"backend"`
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	Collection    string `json:"collection" yaml:"collection"`
	Timezone      string `json:"timezone" yaml:"timezone"`
	BootstrapDays int    `json:"bootstrap_days" yaml:"bootstrap_days"`
	ChunkDays     int    `json:"chunk_days" yaml:"chunk_days"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Defaults applied when a Config field is zero.
const (
	DefaultCollection    = "tasks"
	DefaultBootstrapDays = 30
	DefaultChunkDays     = 30

	// MaxWindowDays bounds the bootstrap window and a backfill chunk.
	MaxWindowDays = 36600
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrCollectionInvalid    = errors.New("collection name is invalid")
	ErrTimezoneUnknown      = errors.New("unknown timezone")
	ErrBootstrapDaysInvalid = errors.New("bootstrap days must be between 0 and 36600")
	ErrChunkDaysInvalid     = errors.New("chunk days must be between 0 and 36600")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Collection != "" && !ValidCollection(c.Collection) {
		return ErrCollectionInvalid
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.BootstrapDays < 0 || c.BootstrapDays > MaxWindowDays {
		return ErrBootstrapDaysInvalid
	}
	if c.ChunkDays < 0 || c.ChunkDays > MaxWindowDays {
		return ErrChunkDaysInvalid
	}
	return nil
}

// Location resolves Timezone. An empty value means the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ErrTimezoneUnknown
	}
	return loc, nil
}

// GetCollection returns the configured collection or DefaultCollection.
func (c Config) GetCollection() string {
	if c.Collection == "" {
		return DefaultCollection
	}
	return c.Collection
}

// GetBootstrapDays returns the configured bootstrap window or the default.
func (c Config) GetBootstrapDays() int {
	if c.BootstrapDays == 0 {
		return DefaultBootstrapDays
	}
	return c.BootstrapDays
}

// GetChunkDays returns the configured backfill chunk size or the default.
func (c Config) GetChunkDays() int {
	if c.ChunkDays == 0 {
		return DefaultChunkDays
	}
	return c.ChunkDays
}
