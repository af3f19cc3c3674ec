// Package tenant provides tenant context management for multi-tenant support.
package tenant

import (
	"fmt"
	"sync"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/security"
)

// Context holds tenant-specific request context: config, storage handle and
// the rotating rid salt. The salt is the only cross-request mutable state a
// tenant carries outside its event log.
type Context struct {
	TenantID string
	Config   *Config
	Database *Database
	Logger   *logging.ChanneledLogger

	saltMu sync.Mutex
}

// Close cleans up the tenant context.
func (ctx *Context) Close() error {
	if ctx.Database != nil {
		return ctx.Database.Close()
	}
	return nil
}

// IsActive returns true if the tenant is active.
func (ctx *Context) IsActive() bool {
	return ctx.Config != nil && ctx.Config.Status == "active"
}

// GetDatabaseInfo returns database connection information for logging.
func (ctx *Context) GetDatabaseInfo() string {
	if ctx.Database != nil {
		return ctx.Database.GetConnectionInfo()
	}
	return "no database connection"
}

// ActiveSalt returns the tenant's current rid salt, rotating it first when
// expired. Rotation issues a fresh salt with the given forward TTL and
// persists it before use; concurrent rotations are last-writer-wins, which is
// acceptable because the only requirement is eventual TTL-bounded rotation.
func (ctx *Context) ActiveSalt(now time.Time, ttl time.Duration) (string, error) {
	ctx.saltMu.Lock()
	defer ctx.saltMu.Unlock()

	if ctx.Config.RIDSalt != "" && now.Before(ctx.Config.RIDSaltExpire) {
		return ctx.Config.RIDSalt, nil
	}

	salt, err := security.GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("salt rotation failed: %w", err)
	}

	ctx.Config.RIDSalt = salt
	ctx.Config.RIDSaltExpire = now.Add(ttl)

	if err := SaveTenantConfig(ctx.Config); err != nil {
		return "", fmt.Errorf("failed to persist rotated salt: %w", err)
	}

	if ctx.Logger != nil {
		ctx.Logger.Tenant().Info("Rotated rid salt",
			"tenantId", ctx.TenantID,
			"expiresAt", ctx.Config.RIDSaltExpire)
	}

	return salt, nil
}
