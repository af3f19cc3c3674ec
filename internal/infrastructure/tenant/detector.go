// Package tenant provides tenant detection and validation.
package tenant

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
)

// Detector resolves tenants from inbound identifiers. Tracking requests carry
// a public tag id; queue messages carry the tenant id directly.
type Detector struct {
	registry *TenantRegistry
	tagIndex map[string]string // tag id -> tenant id
	mu       sync.RWMutex
	logger   *logging.ChanneledLogger
}

// NewDetector creates a new tenant detector from the registry on disk.
func NewDetector(logger *logging.ChanneledLogger) (*Detector, error) {
	d := &Detector{logger: logger}
	if err := d.RefreshRegistry(); err != nil {
		return nil, err
	}
	return d, nil
}

// ResolveTag maps a public tag id to its tenant id. Unknown tags resolve to
// nothing; the gateway treats that as a silent 404.
func (d *Detector) ResolveTag(tagID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tenantID, ok := d.tagIndex[tagID]
	return tenantID, ok
}

// ResolveSiteUUID maps a storage uuid back to its tenant id, used by the
// dispatcher when a queue message carries only the uuid.
func (d *Detector) ResolveSiteUUID(siteUUID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for tenantID, info := range d.registry.Tenants {
		if info.SiteUUID == siteUUID {
			return tenantID, true
		}
	}
	return "", false
}

// Exists reports whether a tenant id is registered.
func (d *Detector) Exists(tenantID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.registry.Tenants[tenantID]
	return ok
}

// ValidateDomain checks if the request domain is allowed for the tenant.
func (d *Detector) ValidateDomain(tenantID, domain string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tenantInfo, exists := d.registry.Tenants[tenantID]
	if !exists {
		return false
	}
	for _, allowedDomain := range tenantInfo.Domains {
		if allowedDomain == "*" {
			return true
		}
		if strings.EqualFold(allowedDomain, domain) {
			return true
		}
	}
	return false
}

// GetTenantStatus returns the current status of a tenant.
func (d *Detector) GetTenantStatus(tenantID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if tenantInfo, exists := d.registry.Tenants[tenantID]; exists {
		return tenantInfo.Status
	}
	return "unknown"
}

// UpdateTenantStatus updates the cached registry status.
func (d *Detector) UpdateTenantStatus(tenantID, status, dbType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tenantInfo, exists := d.registry.Tenants[tenantID]; exists {
		tenantInfo.Status = status
		if dbType != "" {
			tenantInfo.DatabaseType = dbType
		}
		d.registry.Tenants[tenantID] = tenantInfo
	}
}

// RefreshRegistry reloads the tenant registry from disk and rebuilds the tag
// index.
func (d *Detector) RefreshRegistry() error {
	registry, err := LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to refresh tenant registry: %w", err)
	}

	tagIndex := make(map[string]string, len(registry.Tenants))
	for tenantID, info := range registry.Tenants {
		if info.TagID != "" {
			tagIndex[info.TagID] = tenantID
		}
	}

	d.mu.Lock()
	d.registry = registry
	d.tagIndex = tagIndex
	d.mu.Unlock()
	return nil
}

// GetRegistry returns the current registry (for external access).
func (d *Detector) GetRegistry() *TenantRegistry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registry
}
