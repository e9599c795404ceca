package di

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/config"
	"github.com/openbay/openbay-node/internal/di/providers"
	"github.com/openbay/openbay-node/internal/logger"
	"github.com/openbay/openbay-node/internal/service"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:     config.AppConfig{Environment: "development"},
		Logger:  config.LoggerConfig{Level: "error", Format: "json"},
		Data:    config.DataConfig{BasePath: dir},
		Store:   config.StoreConfig{Driver: driver, Path: filepath.Join(dir, "store"), WriteQueueSize: 16},
		Catalog: config.CatalogConfig{Root: catalog.DefaultRoot},
		Server:  config.ServerConfig{Port: "0", ReadTimeout: 5 * time.Second, IdleTimeout: 5 * time.Second},
		Auth: config.AuthConfig{
			KeyPath:         filepath.Join(dir, "auth.key"),
			SessionPath:     filepath.Join(dir, "session"),
			SessionDuration: time.Hour,
			ChallengeTTL:    time.Minute,
			LoginRateLimit:  10,
		},
	}
}

func bootstrap(t *testing.T, cfg *config.Config) *do.RootScope {
	t.Helper()
	injector := NewContainer()
	do.OverrideValue(injector, cfg)
	require.NoError(t, Bootstrap(injector))
	return injector
}

func TestBootstrap_ServesHealth(t *testing.T) {
	injector := bootstrap(t, testConfig(t, config.DriverMemory))
	defer func() { _ = injector.Shutdown() }()

	srv := do.MustInvoke[*providers.HTTPServerHandle](injector)
	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.ListenAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func postJSON(t *testing.T, url, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// syncBuffer is a bytes.Buffer safe for the server goroutine to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBootstrap_LogsPerComponent(t *testing.T) {
	var out syncBuffer
	injector := NewContainer()
	do.OverrideValue(injector, testConfig(t, config.DriverMemory))
	do.OverrideValue(injector, logger.New(logger.Config{Writer: &out, Format: "json", Level: slog.LevelInfo}))
	require.NoError(t, Bootstrap(injector))
	defer func() { _ = injector.Shutdown() }()

	// The HTTP server logs from its own goroutine.
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"component":"http"`)
	}, 2*time.Second, 10*time.Millisecond)

	logs := out.String()
	for _, component := range []string{"store", "sse", "catalog", "auth"} {
		assert.Contains(t, logs, `"component":"`+component+`"`)
	}
}

func TestBootstrap_DataSurvivesRestart(t *testing.T) {
	cfg := testConfig(t, config.DriverBadger)

	injector := bootstrap(t, cfg)
	srv := do.MustInvoke[*providers.HTTPServerHandle](injector)
	base := fmt.Sprintf("http://%s/api/v1", srv.ListenAddr())

	resp := postJSON(t, base+"/auth/register", "", map[string]string{
		"alias":    "alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var registered struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	require.NotEmpty(t, registered.Data.Token)

	resp = postJSON(t, base+"/resources", registered.Data.Token, map[string]string{
		"name":   "Foo",
		"magnet": "magnet:?xt=urn:btih:ABC123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Nil(t, injector.Shutdown())

	// Same data directory: the record is replayed and old tokens still verify.
	restarted := bootstrap(t, cfg)
	defer func() { _ = restarted.Shutdown() }()

	catalogHandle := do.MustInvoke[*providers.CatalogServiceHandle](restarted)
	assert.Equal(t, 1, catalogHandle.Index().Len())
	_, ok := catalogHandle.Identity().Current()
	assert.False(t, ok, "HTTP logins never become the node session")

	authHandle := do.MustInvoke[*providers.AuthServiceHandle](restarted)
	ident, err := authHandle.Authenticate(registered.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", ident.Alias)
}

func TestBootstrap_ResumesNodeSession(t *testing.T) {
	cfg := testConfig(t, config.DriverBadger)

	injector := bootstrap(t, cfg)
	authHandle := do.MustInvoke[*providers.AuthServiceHandle](injector)
	session, err := authHandle.Register(context.Background(), service.RegisterRequest{
		Alias:    "alice",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.NoError(t, authHandle.Adopt(session))
	require.Nil(t, injector.Shutdown())

	restarted := bootstrap(t, cfg)
	defer func() { _ = restarted.Shutdown() }()

	catalogHandle := do.MustInvoke[*providers.CatalogServiceHandle](restarted)
	ident, ok := catalogHandle.Identity().Current()
	require.True(t, ok)
	assert.Equal(t, "alice", ident.Alias)
}
