package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/daybook/internal/backfill"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys.
	cfgKeyBackend          = "backend"
	cfgKeyDataDir          = "data_dir"
	cfgKeyCollection       = "collection"
	cfgKeyTimezone         = "timezone"
	cfgKeyBootstrapDays    = "bootstrap_days"
	cfgKeyChunkDays        = "chunk_days"
	cfgKeyBackfillInterval = "backfill_interval"
	cfgKeyLogLevel         = "log_level"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Daybook configuration

# Backend selection
backend: sqlite

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Collection used when --collection is not given
collection: tasks

# Time zone that decides which day a record belongs to (empty: local)
# timezone: Europe/Belgrade

# Days indexed on first use, and days indexed per backfill chunk
bootstrap_days: 30
chunk_days: 30

# Seconds between backfill chunks in "daybook backfill --watch"
backfill_interval: 5

# debug, info, warn, error
log_level: warn
`

// loadConfig reads config.yaml from the resolved config directory using
// Viper. It creates the directory and a default config.yaml on first run.
func (a *app) loadConfig() error {
	configDir, err := a.resolveConfigDir()
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return sysErr(fmt.Errorf("ensure config dir: %w", err))
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return sysErr(fmt.Errorf("ensure default config: %w", err))
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyCollection, types.DefaultCollection)
	v.SetDefault(cfgKeyBootstrapDays, types.DefaultBootstrapDays)
	v.SetDefault(cfgKeyChunkDays, types.DefaultChunkDays)
	v.SetDefault(cfgKeyBackfillInterval, int(backfill.DefaultInterval/time.Second))
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	a.configDir = configDir
	a.cfg = v
	return nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// storeConfig assembles and validates the backend configuration from flags
// and config.yaml.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := a.resolveDataDir()
	if err != nil {
		return types.Config{}, sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	collection := a.flags.collection
	if collection == "" {
		collection = a.cfg.GetString(cfgKeyCollection)
	}
	cfg := types.Config{
		Backend:       a.cfg.GetString(cfgKeyBackend),
		DataDir:       dataDir,
		Collection:    collection,
		Timezone:      a.cfg.GetString(cfgKeyTimezone),
		BootstrapDays: a.cfg.GetInt(cfgKeyBootstrapDays),
		ChunkDays:     a.cfg.GetInt(cfgKeyChunkDays),
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// backfillInterval returns the configured pause between backfill chunks.
func (a *app) backfillInterval() time.Duration {
	secs := a.cfg.GetInt(cfgKeyBackfillInterval)
	if secs <= 0 {
		return backfill.DefaultInterval
	}
	return time.Duration(secs) * time.Second
}
