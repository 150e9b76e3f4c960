package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payswitch-backend/pkg/auth"
	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "payswitch", ExpirationMinutes: 30},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := metrics.NewRegistry()
	return NewRouter(cfg, logger.Nop(), nil, nil, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), Services{}), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.AdminRole) string {
	t.Helper()
	token, err := auth.MintAdminToken(cfg.JWT, time.Now(), auth.AdminTokenPayload{Subject: "ops@example.com", Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func do(router http.Handler, method, target, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{}`))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthLiveIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := do(router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthReadySkipsMissingDependencies(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := do(router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	router, _ := newTestRouter(t)
	do(router, http.MethodGet, "/health/live", "")

	resp := do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "go_goroutines")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := do(router, http.MethodGet, "/api/admin/v1/ping", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminPingAcceptsViewer(t *testing.T) {
	router, cfg := newTestRouter(t)
	resp := do(router, http.MethodGet, "/api/admin/v1/ping", bearer(t, cfg, enums.AdminRoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ops@example.com")
}

func TestViewerCannotMutate(t *testing.T) {
	router, cfg := newTestRouter(t)
	authz := bearer(t, cfg, enums.AdminRoleViewer)

	for _, target := range []string{
		"/api/admin/v1/accounts",
		"/api/admin/v1/rotation/switch",
		"/api/admin/v1/usage/reset",
		"/api/admin/v1/resets",
	} {
		resp := do(router, http.MethodPost, target, authz)
		assert.Equal(t, http.StatusForbidden, resp.Code, target)
	}
}

func TestOrderWebhookRouteIsMounted(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := do(router, http.MethodPost, "/api/v1/webhooks/orders", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	router, cfg := newTestRouter(t)

	resp := do(router, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(router, http.MethodGet, "/api/admin/v1/nope", bearer(t, cfg, enums.AdminRoleViewer))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUnknownAdminRouteStillRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := do(router, http.MethodGet, "/api/admin/v1/nope", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
