// Package tenant manages tenant-specific configurations and context,
// isolating multi-tenancy logic from the rest of the application.
package tenant

import (
	"fmt"
	"sync"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
)

// Manager coordinates tenant detection and context creation.
type Manager struct {
	detector       *Detector
	contexts       map[string]*Context
	contextMutexes sync.Map // per-tenant mutexes for fine-grained locking
	globalMutex    sync.RWMutex
	logger         *logging.ChanneledLogger
}

// NewManager creates and initializes a new tenant manager.
func NewManager(logger *logging.ChanneledLogger) (*Manager, error) {
	detector, err := NewDetector(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tenant detector: %w", err)
	}

	return &Manager{
		detector: detector,
		contexts: make(map[string]*Context),
		logger:   logger,
	}, nil
}

// GetContext creates or retrieves a tenant context by tenant id.
func (m *Manager) GetContext(tenantID string) (*Context, error) {
	m.globalMutex.RLock()
	if ctx, exists := m.contexts[tenantID]; exists {
		m.globalMutex.RUnlock()
		if ctx.Database != nil && ctx.Database.Conn != nil {
			return ctx, nil
		}
	} else {
		m.globalMutex.RUnlock()
	}

	tenantMutexInterface, _ := m.contextMutexes.LoadOrStore(tenantID, &sync.Mutex{})
	tenantMutex := tenantMutexInterface.(*sync.Mutex)

	tenantMutex.Lock()
	defer tenantMutex.Unlock()

	m.globalMutex.RLock()
	if ctx, exists := m.contexts[tenantID]; exists {
		m.globalMutex.RUnlock()
		if ctx.Database != nil && ctx.Database.Conn != nil {
			return ctx, nil
		}
	} else {
		m.globalMutex.RUnlock()
	}

	return m.createContext(tenantID)
}

// GetContextByTag resolves a public tag id and returns that tenant's context.
func (m *Manager) GetContextByTag(tagID string) (*Context, error) {
	tenantID, ok := m.detector.ResolveTag(tagID)
	if !ok {
		return nil, fmt.Errorf("unknown tag id: %s", tagID)
	}
	return m.GetContext(tenantID)
}

// createContext creates a new tenant context.
func (m *Manager) createContext(tenantID string) (*Context, error) {
	config, err := LoadTenantConfig(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant config: %w", err)
	}

	db, err := NewDatabase(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	ctx := &Context{
		TenantID: tenantID,
		Config:   config,
		Database: db,
		Logger:   m.logger,
	}

	m.globalMutex.Lock()
	m.contexts[tenantID] = ctx
	m.globalMutex.Unlock()

	return ctx, nil
}

// PreActivateAllTenants opens every registered tenant's storage during
// startup so the first tracking request doesn't pay the connection cost.
func (m *Manager) PreActivateAllTenants() error {
	registry := m.detector.GetRegistry()
	if len(registry.Tenants) == 0 {
		return nil
	}

	var failedTenants []string
	for tenantID := range registry.Tenants {
		ctx, err := m.GetContext(tenantID)
		if err != nil {
			m.logger.Tenant().Error("Tenant pre-activation failed",
				"tenantId", tenantID, "error", err.Error())
			failedTenants = append(failedTenants, tenantID)
			continue
		}

		if err := ctx.Database.Conn.Ping(); err != nil {
			failedTenants = append(failedTenants, tenantID)
			continue
		}
		m.detector.UpdateTenantStatus(tenantID, "active", ctx.Database.AdapterName())
	}

	if len(failedTenants) > 0 {
		return fmt.Errorf("pre-activation failed for tenants: %v", failedTenants)
	}
	return nil
}

// GetActiveTenantCount returns the number of active tenants.
func (m *Manager) GetActiveTenantCount() int {
	registry := m.detector.GetRegistry()
	activeCount := 0
	for _, tenantInfo := range registry.Tenants {
		if tenantInfo.Status == "active" {
			activeCount++
		}
	}
	return activeCount
}

// GetDetector returns the detector for external access.
func (m *Manager) GetDetector() *Detector {
	return m.detector
}

// GetLogger returns the logger for middleware access.
func (m *Manager) GetLogger() *logging.ChanneledLogger {
	return m.logger
}

// Close cleans up all tenant contexts.
func (m *Manager) Close() error {
	m.globalMutex.Lock()
	defer m.globalMutex.Unlock()

	for _, ctx := range m.contexts {
		if err := ctx.Close(); err != nil {
			continue
		}
	}
	m.contexts = make(map[string]*Context)
	return nil
}
