package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempHome(t *testing.T) {
	t.Helper()
	t.Setenv("SITEBEACON_HOME", t.TempDir())
}

func TestLoadTenantRegistryEmpty(t *testing.T) {
	useTempHome(t)

	registry, err := LoadTenantRegistry()
	require.NoError(t, err)
	assert.Empty(t, registry.Tenants)
}

func TestRegisterAndLoadTenant(t *testing.T) {
	useTempHome(t)

	info := TenantInfo{
		TenantID:     "acme",
		TagID:        "tag-123",
		SiteUUID:     "11111111-2222-3333-4444-555555555555",
		Status:       "active",
		DatabaseType: "sqlite3",
	}
	require.NoError(t, RegisterTenant(info))

	registry, err := LoadTenantRegistry()
	require.NoError(t, err)
	require.Contains(t, registry.Tenants, "acme")
	assert.Equal(t, "tag-123", registry.Tenants["acme"].TagID)
}

func TestSaveAndLoadTenantConfig(t *testing.T) {
	useTempHome(t)

	cfg := &Config{
		TenantID:  "acme",
		TagID:     "tag-123",
		SiteUUID:  "11111111-2222-3333-4444-555555555555",
		Status:    "active",
		Platforms: []string{"web"},
	}
	require.NoError(t, SaveTenantConfig(cfg))

	loaded, err := LoadTenantConfig("acme")
	require.NoError(t, err)
	assert.Equal(t, "tag-123", loaded.TagID)
	assert.Equal(t, []string{"web"}, loaded.Platforms)
	assert.Contains(t, loaded.SQLitePath, "acme")
}

func TestLoadTenantConfigMissing(t *testing.T) {
	useTempHome(t)

	_, err := LoadTenantConfig("ghost")
	assert.Error(t, err)
}

func TestTrackingEnabled(t *testing.T) {
	cfg := &Config{Status: "active"}
	assert.True(t, cfg.TrackingEnabled("web"), "empty platform list enables all platforms")
	assert.True(t, cfg.TrackingEnabled("tv"))

	cfg.Platforms = []string{"web"}
	assert.True(t, cfg.TrackingEnabled("web"))
	assert.False(t, cfg.TrackingEnabled("tv"))

	cfg.Status = "inactive"
	assert.False(t, cfg.TrackingEnabled("web"))
}

func TestActiveSaltRotation(t *testing.T) {
	useTempHome(t)

	cfg := &Config{TenantID: "acme", Status: "active"}
	require.NoError(t, SaveTenantConfig(cfg))

	ctx := &Context{TenantID: "acme", Config: cfg}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ttl := 30 * 24 * time.Hour

	first, err := ctx.ActiveSalt(now, ttl)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Within the TTL the same salt is reused.
	again, err := ctx.ActiveSalt(now.Add(29*24*time.Hour), ttl)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// Past expiry a fresh salt is issued and persisted.
	rotated, err := ctx.ActiveSalt(now.Add(31*24*time.Hour), ttl)
	require.NoError(t, err)
	assert.NotEqual(t, first, rotated)

	persisted, err := LoadTenantConfig("acme")
	require.NoError(t, err)
	assert.Equal(t, rotated, persisted.RIDSalt)
	assert.True(t, persisted.RIDSaltExpire.After(now.Add(31*24*time.Hour)))
}
