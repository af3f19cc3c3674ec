// Package actors runs one long-lived goroutine per tenant that owns all
// access to that tenant's event log. Every operation is a message on the
// actor's command channel, so writes and reads for one tenant execute
// strictly in arrival order while different tenants proceed in parallel.
package actors

import (
	"context"
	"errors"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	store "github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/analytics"
)

// ErrActorStopped is returned for operations submitted after shutdown began.
var ErrActorStopped = errors.New("tenant actor stopped")

const commandBuffer = 256

// Actor serializes one tenant's log operations through a single goroutine.
type Actor struct {
	siteID   string
	store    *store.EventStore
	commands chan func()
	quit     chan struct{}
	done     chan struct{}
	logger   *logging.ChanneledLogger
}

// NewActor starts the tenant's goroutine over an already-bootstrapped store.
func NewActor(siteID string, s *store.EventStore, logger *logging.ChanneledLogger) *Actor {
	a := &Actor{
		siteID:   siteID,
		store:    s,
		commands: make(chan func(), commandBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go a.run()
	logger.Actor().Info("Tenant actor started", "siteId", siteID)
	return a
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case cmd := <-a.commands:
			cmd()
		case <-a.quit:
			// Drain what was accepted before shutdown, then exit.
			for {
				select {
				case cmd := <-a.commands:
					cmd()
				default:
					a.logger.Actor().Info("Tenant actor stopped", "siteId", a.siteID)
					return
				}
			}
		}
	}
}

// Stop shuts the actor down after draining accepted commands. Safe to call
// more than once.
func (a *Actor) Stop() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
	<-a.done
}

func (a *Actor) submit(ctx context.Context, cmd func()) error {
	select {
	case <-a.quit:
		return ErrActorStopped
	default:
	}
	select {
	case a.commands <- cmd:
		return nil
	case <-a.quit:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Insert appends a batch to the tenant log. Failures come back inside the
// result so delivery channels can decide between ack and retry. Insert blocks
// until the actor has processed the batch, which is what gives the dispatcher
// its per-tenant write ordering.
func (a *Actor) Insert(siteID string, events []*analytics.Event) *analytics.InsertResult {
	ch := make(chan *analytics.InsertResult, 1)
	err := a.submit(context.Background(), func() {
		inserted, err := a.store.InsertEvents(events)
		if err != nil {
			ch <- &analytics.InsertResult{Success: false, Error: err.Error()}
			return
		}
		ch <- &analytics.InsertResult{Success: true, Inserted: inserted}
	})
	if err != nil {
		return &analytics.InsertResult{Success: false, Error: err.Error()}
	}
	return <-ch
}

// AggregateAll computes the full dashboard aggregate over the filter window.
func (a *Actor) AggregateAll(ctx context.Context, filters *analytics.AggregateFilters) (*analytics.AggregateResult, error) {
	type reply struct {
		res *analytics.AggregateResult
		err error
	}
	ch := make(chan reply, 1)
	if err := a.submit(ctx, func() {
		res, err := a.store.AggregateAll(filters, time.Now())
		ch <- reply{res, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EventSummary returns the paginated per-event-type rollup.
func (a *Actor) EventSummary(ctx context.Context, filters *analytics.SummaryFilters) (*analytics.EventSummary, error) {
	type reply struct {
		res *analytics.EventSummary
		err error
	}
	ch := make(chan reply, 1)
	if err := a.submit(ctx, func() {
		res, err := a.store.EventSummary(filters, time.Now())
		ch <- reply{res, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CurrentVisitors counts distinct visitors in the trailing window.
func (a *Actor) CurrentVisitors(ctx context.Context, window time.Duration) (*analytics.CurrentVisitors, error) {
	type reply struct {
		res *analytics.CurrentVisitors
		err error
	}
	ch := make(chan reply, 1)
	if err := a.submit(ctx, func() {
		res, err := a.store.CurrentVisitors(window, time.Now())
		ch <- reply{res, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunSQLQuery executes one guarded read-only query. Query failures are
// reported inside the result; only actor/context failures surface as errors.
func (a *Actor) RunSQLQuery(ctx context.Context, query string, limit int) (*analytics.SQLQueryResult, error) {
	ch := make(chan *analytics.SQLQueryResult, 1)
	if err := a.submit(ctx, func() {
		ch <- a.store.RunSQLQuery(query, limit)
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetSchema reflects the tenant log's tables for the query UI.
func (a *Actor) GetSchema(ctx context.Context) (*analytics.SchemaResult, error) {
	type reply struct {
		res *analytics.SchemaResult
		err error
	}
	ch := make(chan reply, 1)
	if err := a.submit(ctx, func() {
		res, err := a.store.GetSchema()
		ch <- reply{res, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HealthCheck probes the tenant log.
func (a *Actor) HealthCheck(ctx context.Context) (*analytics.HealthStatus, error) {
	type reply struct {
		res *analytics.HealthStatus
		err error
	}
	ch := make(chan reply, 1)
	if err := a.submit(ctx, func() {
		res, err := a.store.HealthCheck()
		ch <- reply{res, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
