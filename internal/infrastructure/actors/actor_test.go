package actors

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	store "github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
)

func newTestActor(t *testing.T, siteID string) *Actor {
	t.Helper()

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	db, err := database.NewConnection("sqlite3", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventStore, err := store.NewEventStore(db, siteID, "sqlite3", logger)
	require.NoError(t, err)

	actor := NewActor(siteID, eventStore, logger)
	t.Cleanup(actor.Stop)
	return actor
}

func TestActorInsertAndHealth(t *testing.T) {
	actor := newTestActor(t, "site-a")
	now := time.Now().UTC()

	result := actor.Insert("site-a", []*domain.Event{
		{Event: "page_view", CreatedAt: now},
		{Event: "signup", CreatedAt: now},
	})
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Inserted)

	health, err := actor.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, health.TotalEvents)
}

func TestActorConcurrentInserts(t *testing.T) {
	actor := newTestActor(t, "site-a")
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := actor.Insert("site-a", []*domain.Event{{Event: "page_view", CreatedAt: now}})
			assert.True(t, result.Success)
		}()
	}
	wg.Wait()

	health, err := actor.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, health.TotalEvents, "concurrent inserts serialize without loss")
}

func TestActorQueriesSeeCompletedWrites(t *testing.T) {
	actor := newTestActor(t, "site-a")
	now := time.Now().UTC()
	v := "visitor-1"

	result := actor.Insert("site-a", []*domain.Event{
		{Event: "page_view", CreatedAt: now, RID: &v},
	})
	require.True(t, result.Success)

	visitors, err := actor.CurrentVisitors(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, visitors.Count, "a query issued after insert sees the write")

	agg, err := actor.AggregateAll(context.Background(), &domain.AggregateFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalAllTime)
}

func TestActorStopRejectsNewWork(t *testing.T) {
	actor := newTestActor(t, "site-a")
	actor.Stop()

	result := actor.Insert("site-a", []*domain.Event{{Event: "page_view"}})
	assert.False(t, result.Success)

	_, err := actor.HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrActorStopped)
}

func TestActorRunSQLQuery(t *testing.T) {
	actor := newTestActor(t, "site-a")

	result, err := actor.RunSQLQuery(context.Background(), "DELETE FROM events", 10)
	require.NoError(t, err, "rejected queries surface inline, not as actor errors")
	assert.False(t, result.Success)

	schema, err := actor.GetSchema(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.Success)
}
