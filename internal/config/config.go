// Package config provides node configuration with support for command-line flags, environment variables, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds the node configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Store   StoreConfig
	Catalog CatalogConfig
	Server  ServerConfig
	Auth    AuthConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json or pretty; empty picks by environment
}

// DataConfig holds the on-disk layout.
type DataConfig struct {
	BasePath string
}

// StoreConfig selects and tunes the keyed store backend.
type StoreConfig struct {
	Driver         string
	Path           string // Defaults to {data}/store (badger) or {data}/store.db (sqlite)
	WriteQueueSize int    // Pending writes before new ones fail fast (default: 256)
}

// CatalogConfig holds catalog namespace configuration.
type CatalogConfig struct {
	// Root is the shared namespace prefix. Nodes only see each other's
	// listings when they agree on it.
	Root string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // 0 disables, needed for long-lived event streams
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for session tokens (32 bytes)
	TokenKey []byte
	// KeyPath is where the token key is persisted (default: {data}/auth.key)
	KeyPath         string
	SessionPath     string // Persisted session token for resume (default: {data}/session)
	SessionDuration time.Duration
	ChallengeTTL    time.Duration
	LoginRateLimit  int // Login attempts per minute per client
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("openbay", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty)")
	dataPath := fs.String("data-path", "", "Base path for node data")

	storeDriver := fs.String("store-driver", "", "Keyed store backend (badger, sqlite, memory)")
	storePath := fs.String("store-path", "", "Path for the keyed store")
	writeQueue := fs.String("write-queue-size", "", "Pending store writes before failing fast (default: 256)")

	catalogRoot := fs.String("catalog-root", "", "Shared catalog namespace (default: gunbay)")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, disabled)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins")

	sessionDuration := fs.String("session-duration", "", "Session token lifetime (e.g., 720h)")
	challengeTTL := fs.String("challenge-ttl", "", "Key login challenge lifetime (default: 2m)")
	loginRate := fs.String("login-rate-limit", "", "Login attempts per minute per client (default: 10)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env files are fine. godotenv.Load never overrides variables
	// that are already set, which keeps env above the file.
	_ = godotenv.Load(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(getConfigValue(*storeDriver, "STORE_DRIVER", DriverBadger)),
			Path:           getConfigValue(*storePath, "STORE_PATH", ""),
			WriteQueueSize: getIntConfigValue(*writeQueue, "STORE_WRITE_QUEUE_SIZE", 256),
		},
		Catalog: CatalogConfig{
			Root: getConfigValue(*catalogRoot, "CATALOG_ROOT", "gunbay"),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "")),
		},
		Auth: AuthConfig{
			TokenKey:       nil, // Set by auth.LoadOrGenerateKey in main
			LoginRateLimit: getIntConfigValue(*loginRate, "LOGIN_RATE_LIMIT", 10),
		},
	}

	durations := []struct {
		dst          *time.Duration
		flagValue    string
		envKey, def  string
		friendlyName string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "0s", "write timeout"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout"},
		{&cfg.Auth.SessionDuration, *sessionDuration, "SESSION_DURATION", "720h", "session duration"},
		{&cfg.Auth.ChallengeTTL, *challengeTTL, "CHALLENGE_TTL", "2m", "challenge ttl"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.friendlyName, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store path cannot be empty after expansion")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid store driver: %s (must be badger, sqlite, or memory)", c.Store.Driver)
	}

	if c.Store.WriteQueueSize <= 0 {
		return fmt.Errorf("write queue size must be positive, got %d", c.Store.WriteQueueSize)
	}

	root := strings.TrimSpace(c.Catalog.Root)
	if root == "" || strings.ContainsAny(root, "/~") {
		return fmt.Errorf("invalid catalog root: %q", c.Catalog.Root)
	}

	if c.Auth.LoginRateLimit <= 0 {
		return fmt.Errorf("login rate limit must be positive, got %d", c.Auth.LoginRateLimit)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and every path derived from it.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	base, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, ".openbay"))
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	defaultStore := filepath.Join(base, "store")
	if c.Store.Driver == DriverSQLite {
		defaultStore = filepath.Join(base, "store.db")
	}
	if c.Store.Path, err = expandPath(c.Store.Path, defaultStore); err != nil {
		return err
	}

	if c.Auth.KeyPath, err = expandPath(getConfigValue("", "AUTH_KEY_PATH", ""), filepath.Join(base, "auth.key")); err != nil {
		return err
	}
	if c.Auth.SessionPath, err = expandPath(getConfigValue("", "SESSION_PATH", ""), filepath.Join(base, "session")); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
