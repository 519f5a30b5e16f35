// Configuration loading and path resolution precedence, exercised through
// the daybook binary with various flag, env, and config file combinations.
package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigYAML writes a config.yaml file in the given directory.
func writeConfigYAML(t *testing.T, configDir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(configDir, "config.yaml"),
		[]byte(content), 0o644))
}

func assertDatabaseIn(t *testing.T, dir string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, "daybook.db"))
	assert.NoError(t, err, "daybook.db should exist in %s", dir)
}

func TestConfigLoading_EnvironmentOverrides(t *testing.T) {
	t.Run("DAYBOOK_CONFIG_DIR selects the config directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		envConfigDir := filepath.Join(tmpDir, "env-config")
		dataDir := filepath.Join(tmpDir, "data")

		result := runDaybook(t, []string{"DAYBOOK_CONFIG_DIR=" + envConfigDir}, "",
			"--data-dir", dataDir, "init")
		require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)

		_, err := os.Stat(filepath.Join(envConfigDir, "config.yaml"))
		assert.NoError(t, err, "default config.yaml should be written to DAYBOOK_CONFIG_DIR")
		assertDatabaseIn(t, dataDir)
	})

	t.Run("DAYBOOK_DATA_DIR selects the data directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		envDataDir := filepath.Join(tmpDir, "env-data")

		result := runDaybook(t, []string{"DAYBOOK_DATA_DIR=" + envDataDir}, "",
			"--config-dir", filepath.Join(tmpDir, "config"), "init")
		require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)
		assertDatabaseIn(t, envDataDir)
	})
}

func TestConfigLoading_FlagOverrides(t *testing.T) {
	t.Run("--config-dir overrides DAYBOOK_CONFIG_DIR", func(t *testing.T) {
		tmpDir := t.TempDir()
		envCfgDir := filepath.Join(tmpDir, "env-cfg")
		flagCfgDir := filepath.Join(tmpDir, "flag-cfg")

		result := runDaybook(t, []string{"DAYBOOK_CONFIG_DIR=" + envCfgDir}, "",
			"--config-dir", flagCfgDir, "--data-dir", filepath.Join(tmpDir, "data"), "init")
		require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)

		_, err := os.Stat(filepath.Join(flagCfgDir, "config.yaml"))
		assert.NoError(t, err)
		_, err = os.Stat(envCfgDir)
		assert.True(t, os.IsNotExist(err), "env config dir should not be created")
	})

	t.Run("--data-dir overrides config.yaml data_dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfgDir := filepath.Join(tmpDir, "cfg")
		configDataDir := filepath.Join(tmpDir, "config-data")
		flagDataDir := filepath.Join(tmpDir, "flag-data")
		writeConfigYAML(t, cfgDir, fmt.Sprintf("backend: sqlite\ndata_dir: %s\n", configDataDir))

		result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", flagDataDir, "day")
		require.Equal(t, 0, result.ExitCode, "day failed: %s", result.Stderr)

		assertDatabaseIn(t, flagDataDir)
		_, err := os.Stat(filepath.Join(configDataDir, "daybook.db"))
		assert.True(t, os.IsNotExist(err), "daybook.db should not exist at config data_dir")
	})

	t.Run("config.yaml data_dir overrides DAYBOOK_DATA_DIR", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfgDir := filepath.Join(tmpDir, "cfg")
		yamlDataDir := filepath.Join(tmpDir, "yaml-data")
		writeConfigYAML(t, cfgDir, fmt.Sprintf("backend: sqlite\ndata_dir: %s\n", yamlDataDir))

		result := runDaybook(t, []string{"DAYBOOK_DATA_DIR=" + filepath.Join(tmpDir, "env-data")}, "",
			"--config-dir", cfgDir, "day")
		require.Equal(t, 0, result.ExitCode, "day failed: %s", result.Stderr)
		assertDatabaseIn(t, yamlDataDir)
	})
}

func TestConfigLoading_InitPersistsSettings(t *testing.T) {
	tmpDir := t.TempDir()
	cfgDir := filepath.Join(tmpDir, "cfg")
	dataDir := filepath.Join(tmpDir, "data")

	result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", dataDir, "init", "--timezone", "UTC")
	require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)

	raw, err := os.ReadFile(filepath.Join(cfgDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "data_dir: "+dataDir)
	assert.Contains(t, string(raw), "timezone: UTC")

	// Later commands find the data dir through config.yaml alone.
	result = runDaybook(t, nil, "", "--config-dir", cfgDir, "add", "--title", "First entry")
	require.Equal(t, 0, result.ExitCode, "add failed: %s", result.Stderr)
	result = runDaybook(t, nil, "", "--config-dir", cfgDir, "day")
	assert.Contains(t, result.Stdout, "First entry")
}

func TestConfigLoading_DefaultCollection(t *testing.T) {
	tmpDir := t.TempDir()
	cfgDir := filepath.Join(tmpDir, "cfg")
	dataDir := filepath.Join(tmpDir, "data")
	writeConfigYAML(t, cfgDir, "backend: sqlite\ncollection: moods\n")

	result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", dataDir, "history", "status", "--json")
	require.Equal(t, 0, result.ExitCode, "status failed: %s", result.Stderr)
	st := ParseJSON[Status](t, result.Stdout)
	assert.Equal(t, "moods", st.Collection)
}

func TestConfigLoading_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envDataDir := filepath.Join(tmpDir, "dotenv-data")
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"),
		[]byte("DAYBOOK_DATA_DIR="+envDataDir+"\n"), 0o644))

	result := runDaybook(t, nil, tmpDir, "--config-dir", filepath.Join(tmpDir, "cfg"), "init")
	require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)
	assertDatabaseIn(t, envDataDir)
}

func TestConfigLoading_ErrorConditions(t *testing.T) {
	t.Run("invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfgDir := filepath.Join(tmpDir, "config")
		writeConfigYAML(t, cfgDir, "invalid: yaml: syntax: : :")

		result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", filepath.Join(tmpDir, "data"), "day")
		assert.NotEqual(t, 0, result.ExitCode, "should fail with invalid YAML")
		assert.Contains(t, result.Stderr, "read config")
	})

	t.Run("unknown backend", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfgDir := filepath.Join(tmpDir, "config")
		writeConfigYAML(t, cfgDir, "backend: postgres\n")

		result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", filepath.Join(tmpDir, "data"), "day")
		assert.Equal(t, 1, result.ExitCode)
		assert.Contains(t, result.Stderr, "unknown backend")
	})

	t.Run("unknown timezone", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfgDir := filepath.Join(tmpDir, "config")
		writeConfigYAML(t, cfgDir, "backend: sqlite\ntimezone: Mars/Olympus\n")

		result := runDaybook(t, nil, "", "--config-dir", cfgDir, "--data-dir", filepath.Join(tmpDir, "data"), "day")
		assert.Equal(t, 1, result.ExitCode)
	})
}

func TestConfigLoading_XDGPathsOnLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths only apply on Linux")
	}

	tmpDir := t.TempDir()
	xdgConfigHome := filepath.Join(tmpDir, "xdg-config")
	xdgDataHome := filepath.Join(tmpDir, "xdg-data")

	result := runDaybook(t,
		[]string{
			"XDG_CONFIG_HOME=" + xdgConfigHome,
			"XDG_DATA_HOME=" + xdgDataHome,
			"HOME=" + tmpDir,
		},
		"",
		"init",
	)
	require.Equal(t, 0, result.ExitCode, "init failed: %s", result.Stderr)

	_, err := os.Stat(filepath.Join(xdgConfigHome, "daybook", "config.yaml"))
	assert.NoError(t, err, "config.yaml should exist in XDG config dir")
	assertDatabaseIn(t, filepath.Join(xdgDataHome, "daybook"))
}
