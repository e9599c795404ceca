package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Data:    DataConfig{BasePath: "/some/path"},
		Store:   StoreConfig{Driver: DriverBadger, Path: "/some/path/store", WriteQueueSize: 16},
		Catalog: CatalogConfig{Root: "gunbay"},
		Auth:    AuthConfig{LoginRateLimit: 10},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true}, // case insensitive
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_StoreDriver(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		path    string
		wantErr string
	}{
		{"badger with path", DriverBadger, "/data/store", ""},
		{"sqlite with path", DriverSQLite, "/data/store.db", ""},
		{"memory needs no path", DriverMemory, "", ""},
		{"badger without path", DriverBadger, "", "store path cannot be empty"},
		{"unknown driver", "bolt", "/data/store", "invalid store driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Store.Driver = tt.driver
			cfg.Store.Path = tt.path

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CatalogRoot(t *testing.T) {
	for _, root := range []string{"", "  ", "a/b", "~alice"} {
		cfg := validConfig()
		cfg.Catalog.Root = root
		assert.Error(t, cfg.Validate(), "root %q", root)
	}
}

func TestValidate_WriteQueueSize(t *testing.T) {
	cfg := validConfig()
	cfg.Store.WriteQueueSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write queue size")
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("~/my-data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "my-data"), got)

	got, err = expandPath("relative/path", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Contains(t, got, filepath.Join("relative", "path"))
}

func TestExpandPaths_DerivesFromDataPath(t *testing.T) {
	cfg := &Config{
		Data:  DataConfig{BasePath: "/var/lib/openbay"},
		Store: StoreConfig{Driver: DriverSQLite},
	}

	require.NoError(t, cfg.expandPaths())

	assert.Equal(t, "/var/lib/openbay/store.db", cfg.Store.Path)
	assert.Equal(t, "/var/lib/openbay/auth.key", cfg.Auth.KeyPath)
	assert.Equal(t, "/var/lib/openbay/session", cfg.Auth.SessionPath)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_ENV_KEY", "env-value")

	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default-value"))
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))
	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("TEST_INT_KEY", "not-a-number")

	assert.Equal(t, 7, getIntConfigValue("7", "TEST_INT_KEY", 3))
	assert.Equal(t, 3, getIntConfigValue("", "TEST_INT_KEY", 3))
	assert.Equal(t, 3, getIntConfigValue("", "NONEXISTENT_KEY", 3))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)

	cfg, err := LoadConfig([]string{"-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, DriverBadger, cfg.Store.Driver)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.Store.Path)
	assert.Equal(t, "gunbay", cfg.Catalog.Root)
	assert.Equal(t, 256, cfg.Store.WriteQueueSize)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 720*time.Hour, cfg.Auth.SessionDuration)
	assert.Equal(t, 2*time.Minute, cfg.Auth.ChallengeTTL)
}

func TestLoadConfig_EnvFileBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "CATALOG_ROOT=fromfile\nSTORE_DRIVER=memory\nLOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("DATA_PATH", dir)
	t.Setenv("LOG_LEVEL", "warn")
	// godotenv sets unset keys process-wide; register them for cleanup.
	t.Setenv("CATALOG_ROOT", "")
	t.Setenv("STORE_DRIVER", "")
	require.NoError(t, os.Unsetenv("CATALOG_ROOT"))
	require.NoError(t, os.Unsetenv("STORE_DRIVER"))

	cfg, err := LoadConfig([]string{"-env-file", envFile})
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.Catalog.Root)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)
	t.Setenv("CATALOG_ROOT", "fromenv")

	cfg, err := LoadConfig([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-catalog-root", "fromflag",
		"-port", "9090",
		"-cors-origins", "http://localhost:5173",
	})
	require.NoError(t, err)

	assert.Equal(t, "fromflag", cfg.Catalog.Root)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)

	_, err := LoadConfig([]string{"-env-file", filepath.Join(dir, "missing.env"), "-session-duration", "forever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session duration")
}
