package actors

import (
	"fmt"
	"sync"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	store "github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/tenant"
)

// Registry lazily spawns and caches one actor per tenant. All callers that
// name the same tenant get the same actor, which is what makes per-tenant
// write ordering hold across the whole process.
type Registry struct {
	tenantManager *tenant.Manager
	actors        map[string]*Actor
	mu            sync.RWMutex
	logger        *logging.ChanneledLogger
}

// NewRegistry creates an empty actor registry over the tenant manager.
func NewRegistry(tenantManager *tenant.Manager, logger *logging.ChanneledLogger) *Registry {
	return &Registry{
		tenantManager: tenantManager,
		actors:        make(map[string]*Actor),
		logger:        logger,
	}
}

// Get returns the tenant's actor, spawning it on first use.
func (r *Registry) Get(tenantID string) (*Actor, error) {
	r.mu.RLock()
	if actor, exists := r.actors[tenantID]; exists {
		r.mu.RUnlock()
		return actor, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if actor, exists := r.actors[tenantID]; exists {
		return actor, nil
	}

	tenantCtx, err := r.tenantManager.GetContext(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", tenantID, err)
	}

	siteID := tenantCtx.Config.SiteUUID
	if siteID == "" {
		siteID = tenantID
	}

	eventStore, err := store.NewEventStore(
		&database.DB{DB: tenantCtx.Database.Conn},
		siteID,
		tenantCtx.Database.AdapterName(),
		r.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store for tenant %s: %w", tenantID, err)
	}

	actor := NewActor(siteID, eventStore, r.logger)
	r.actors[tenantID] = actor
	return actor, nil
}

// Count reports how many actors are currently running.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Shutdown stops every actor, draining accepted commands first.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.actors = make(map[string]*Actor)
	r.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
	r.logger.Actor().Info("All tenant actors stopped", "count", len(actors))
}
