package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/observability"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	unsetenv(t, "CATALOG_BACKEND", "NUMBER_STRATEGY", "AUDIT_ENABLED", "APP_ENV")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, CatalogBackendMemory, cfg.CatalogBackend)
	require.Equal(t, NumberStrategySequence, cfg.NumberStrategy)
	require.False(t, cfg.NeedsPostgres())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownBackends(t *testing.T) {
	unsetenv(t, "AUDIT_ENABLED")
	t.Setenv("CATALOG_BACKEND", "ldap")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "unknown catalog backend")

	t.Setenv("CATALOG_BACKEND", "postgres")
	t.Setenv("NUMBER_STRATEGY", "uuid")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "unknown number strategy")

	t.Setenv("NUMBER_STRATEGY", "snowflake")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.NeedsPostgres())
}

func TestRouterHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "production"}, Metrics: metrics})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://procure.local/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "https://procure.local/metrics", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `route="/healthz"`)
}

func TestActorMiddlewareStoresHeader(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{}) {
		r.Use(mw)
	}
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(shared.ActorFromContext(r.Context())))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Actor", "  buyer  ")
	r.ServeHTTP(rr, req)
	require.Equal(t, "buyer", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Empty(t, rr.Body.String())
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.True(t, strings.HasPrefix(out, "{"))
	require.Contains(t, out, `"msg":"shown"`)
}
