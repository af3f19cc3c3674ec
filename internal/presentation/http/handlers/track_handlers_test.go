package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebeacon/sitebeacon-go/internal/application/container"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
	"github.com/sitebeacon/sitebeacon-go/internal/presentation/http/routes"
)

const (
	testTagID        = "01HTESTTAG0000000000000000"
	testSiteUUID     = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	webOnlyTagID     = "01HWEBONLYTAG0000000000000"
	passthroughTagID = "01HPASSTHRUTAG000000000000"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("SITEBEACON_HOME", t.TempDir())

	require.NoError(t, tenant.RegisterTenant(tenant.TenantInfo{
		TenantID:     "acme",
		TagID:        testTagID,
		SiteUUID:     testSiteUUID,
		Status:       "active",
		DatabaseType: "sqlite3",
	}))
	require.NoError(t, tenant.SaveTenantConfig(&tenant.Config{
		TenantID: "acme",
		TagID:    testTagID,
		SiteUUID: testSiteUUID,
		Status:   "active",
	}))

	require.NoError(t, tenant.RegisterTenant(tenant.TenantInfo{
		TenantID:     "webonly",
		TagID:        webOnlyTagID,
		Status:       "active",
		DatabaseType: "sqlite3",
	}))
	require.NoError(t, tenant.SaveTenantConfig(&tenant.Config{
		TenantID:  "webonly",
		TagID:     webOnlyTagID,
		Status:    "active",
		Platforms: []string{"web"},
	}))

	require.NoError(t, tenant.RegisterTenant(tenant.TenantInfo{
		TenantID:     "gdprco",
		TagID:        passthroughTagID,
		Status:       "active",
		DatabaseType: "sqlite3",
	}))
	require.NoError(t, tenant.SaveTenantConfig(&tenant.Config{
		TenantID:       "gdprco",
		TagID:          passthroughTagID,
		Status:         "active",
		PassthroughRID: true,
	}))

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	manager, err := tenant.NewManager(logger)
	require.NoError(t, err)

	appContainer, err := container.NewContainer(manager, logger)
	require.NoError(t, err)
	t.Cleanup(appContainer.Shutdown)

	return routes.SetupRoutes(appContainer)
}

func doJSON(router *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func trackBody() string {
	return `{"event":"page_view","client_page_url":"https://example.com/pricing?utm_source=news&token=secret123"}`
}

func TestTrackStoresEvent(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account="+testTagID, trackBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Error  *string `json:"error"`
		Status int     `json:"status"`
		RID    string  `json:"rid"`
		Queued bool    `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.RID)
	assert.False(t, resp.Queued, "direct mode writes synchronously")

	health := doJSON(router, http.MethodGet, "/api/v1/sites/acme/health", "")
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"totalEvents":1`)
}

func TestTrackSameIPGetsSameRID(t *testing.T) {
	router := newTestRouter(t)

	first := doJSON(router, http.MethodPost, "/track?account="+testTagID, trackBody())
	second := doJSON(router, http.MethodPost, "/track?account="+testTagID, trackBody())
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b struct {
		RID string `json:"rid"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.RID, b.RID, "same client IP hashes to the same visitor within a salt window")
}

func TestTrackPassthroughRIDVerbatim(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account="+passthroughTagID,
		`{"event":"page_view","client_page_url":"https://example.com/","rid":"visitor-123"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RID string `json:"rid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "visitor-123", resp.RID, "pass-through tenants echo the client-supplied rid")
}

func TestTrackPassthroughRIDMissingStaysEmpty(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account="+passthroughTagID, trackBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RID string `json:"rid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.RID, "pass-through tenants never fall back to hashing the client IP")
}

func TestTrackUnknownTag(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account=not-a-tag", trackBody())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackDisabledPlatform(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account="+webOnlyTagID+"&platform=tv", trackBody())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, "/track?account="+webOnlyTagID+"&platform=web", trackBody())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrackMissingAccount(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track", trackBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackMissingEventName(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/track?account="+testTagID, `{"client_page_url":"https://example.com/"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackRuleDefinitionNotStored(t *testing.T) {
	router := newTestRouter(t)

	body := `{"event":"auto_capture","custom_data":{"type":"auto_capture","selector":".buy"}}`
	w := doJSON(router, http.MethodPost, "/track?account="+testTagID, body)
	require.Equal(t, http.StatusOK, w.Code)

	health := doJSON(router, http.MethodGet, "/api/v1/sites/acme/health", "")
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"totalEvents":0`,
		"rule definitions are acknowledged but never persisted")
}

func TestAggregatesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	require.Equal(t, http.StatusOK,
		doJSON(router, http.MethodPost, "/track?account="+testTagID, trackBody()).Code)

	w := doJSON(router, http.MethodGet, "/api/v1/sites/acme/aggregates?timezone=UTC", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		ScoreCards struct {
			UniqueVisitors int `json:"uniqueVisitors"`
			TotalPageViews int `json:"totalPageViews"`
		} `json:"scoreCards"`
		TotalAllTime int `json:"totalAllTime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.ScoreCards.UniqueVisitors)
	assert.Equal(t, 1, result.ScoreCards.TotalPageViews)
	assert.Equal(t, 1, result.TotalAllTime)
}

func TestAggregatesUnknownTenant(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/sites/ghost/aggregates", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryEndpointGuard(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/sites/acme/query", `{"query":"DELETE FROM events"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = doJSON(router, http.MethodPost, "/api/v1/sites/acme/query", `{"query":"SELECT COUNT(*) AS n FROM events"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestSchemaEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/sites/acme/schema", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events"`)
}

func TestSystemHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
