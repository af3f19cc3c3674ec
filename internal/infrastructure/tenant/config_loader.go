// Package tenant manages tenant-specific configurations and context,
// isolating multi-tenancy logic from the rest of the application.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the structure of a single tenant's configuration,
// loaded from its env.json file. The salt pair lives here so rotation
// survives restarts.
type Config struct {
	TenantID       string    `json:"tenantId"`
	TagID          string    `json:"tagId"`
	SiteUUID       string    `json:"siteUuid"`
	Domains        []string  `json:"domains"`
	Status         string    `json:"status"`
	DatabaseType   string    `json:"databaseType"`
	TursoDatabase  string    `json:"TURSO_DATABASE_URL"`
	TursoToken     string    `json:"TURSO_AUTH_TOKEN"`
	TursoEnabled   bool      `json:"TURSO_ENABLED"`
	Platforms      []string  `json:"platforms"`
	PassthroughRID bool      `json:"GDPR_PASSTHROUGH"`
	RIDSalt        string    `json:"RID_SALT"`
	RIDSaltExpire  time.Time `json:"RID_SALT_EXPIRE"`
	SQLitePath     string    `json:"-"`
}

// TrackingEnabled reports whether the tenant accepts events for a platform.
// An empty platform list means all platforms are enabled.
func (c *Config) TrackingEnabled(platform string) bool {
	if c.Status != "active" {
		return false
	}
	if len(c.Platforms) == 0 {
		return true
	}
	for _, p := range c.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// BaseDir resolves the server's data directory. SITEBEACON_HOME overrides the
// default under the user home directory.
func BaseDir() (string, error) {
	if dir := os.Getenv("SITEBEACON_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find user home directory: %w", err)
	}
	return filepath.Join(homeDir, "sitebeacon-go-server"), nil
}

func configPath(baseDir, tenantID string) string {
	return filepath.Join(baseDir, "config", tenantID, "env.json")
}

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
func LoadTenantConfig(tenantID string) (*Config, error) {
	baseDir, err := BaseDir()
	if err != nil {
		return nil, err
	}

	path := configPath(baseDir, tenantID)
	configFile, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("tenant config file not found at %s", path)
		}
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	var tenantConfig Config
	if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
		return nil, fmt.Errorf("could not parse tenant config json: %w", err)
	}

	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(baseDir, "db", tenantID, "events.db")

	return &tenantConfig, nil
}

// SaveTenantConfig persists a tenant's configuration back to its env.json
// file. Salt rotation is the only writer after provisioning; last writer wins.
func SaveTenantConfig(cfg *Config) error {
	baseDir, err := BaseDir()
	if err != nil {
		return err
	}

	path := configPath(baseDir, cfg.TenantID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tenant config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tenant config: %w", err)
	}
	return nil
}

// TenantRegistry holds the global tenant configuration.
type TenantRegistry struct {
	Tenants map[string]TenantInfo `json:"tenants"`
}

// TenantInfo holds tenant metadata. TagID is the public tracking identifier
// that inbound /track requests carry.
type TenantInfo struct {
	TenantID     string   `json:"tenantId"`
	TagID        string   `json:"tagId"`
	SiteUUID     string   `json:"siteUuid"`
	Domains      []string `json:"domains"`
	Status       string   `json:"status"`       // "unknown", "inactive", "active"
	DatabaseType string   `json:"databaseType"` // "turso", "sqlite3"
}

// LoadTenantRegistry loads the global tenant registry.
func LoadTenantRegistry() (*TenantRegistry, error) {
	baseDir, err := BaseDir()
	if err != nil {
		return nil, err
	}

	registryPath := filepath.Join(baseDir, "config", "sitebeacon", "tenants.json")

	if _, err := os.Stat(registryPath); os.IsNotExist(err) {
		return &TenantRegistry{Tenants: map[string]TenantInfo{}}, nil
	}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant registry: %w", err)
	}

	var registry TenantRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}
	if registry.Tenants == nil {
		registry.Tenants = map[string]TenantInfo{}
	}

	return &registry, nil
}

// RegisterTenant adds a new tenant to the registry file.
func RegisterTenant(info TenantInfo) error {
	baseDir, err := BaseDir()
	if err != nil {
		return err
	}

	registryPath := filepath.Join(baseDir, "config", "sitebeacon", "tenants.json")

	registry, err := LoadTenantRegistry()
	if err != nil {
		return err
	}

	if _, exists := registry.Tenants[info.TenantID]; !exists {
		registry.Tenants[info.TenantID] = info

		if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}

		data, err := json.MarshalIndent(registry, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal registry: %w", err)
		}

		if err := os.WriteFile(registryPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write registry: %w", err)
		}
	}

	return nil
}
