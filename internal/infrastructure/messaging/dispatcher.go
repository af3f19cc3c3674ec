package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// WriterResolver maps a site id to the writer that owns its log. A resolution
// failure is treated as transient (the tenant may not be registered yet), so
// the dispatcher retries rather than drops.
type WriterResolver func(siteID string) (analytics.EventWriter, error)

// Dispatcher drains delivery batches into tenant logs. Events are grouped by
// site, chunked, and written sequentially per site while distinct sites
// proceed concurrently. A site's deliveries are settled all-or-nothing: any
// failed chunk retries every delivery that contributed events for that site.
//
// Because retried deliveries replay chunks that may have already committed,
// the pipeline over-counts rather than under-counts after partial failures.
type Dispatcher struct {
	resolve    WriterResolver
	chunkSize  int
	retryDelay time.Duration
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
}

// NewDispatcher builds a dispatcher with chunking and retry from config.
func NewDispatcher(resolve WriterResolver, logger *logging.ChanneledLogger, perf *performance.Tracker) *Dispatcher {
	return &Dispatcher{
		resolve:    resolve,
		chunkSize:  config.DispatchChunkSize,
		retryDelay: config.DispatchRetryDelay,
		logger:     logger,
		perf:       perf,
	}
}

// ProcessBatch writes one round of deliveries. It blocks until every site's
// writes have settled.
func (d *Dispatcher) ProcessBatch(deliveries []*Delivery) {
	if len(deliveries) == 0 {
		return
	}

	bySite := make(map[string][]*Delivery)
	order := []string{}
	for _, delivery := range deliveries {
		siteID := delivery.Message.SiteID
		if _, seen := bySite[siteID]; !seen {
			order = append(order, siteID)
		}
		bySite[siteID] = append(bySite[siteID], delivery)
	}

	var wg sync.WaitGroup
	for _, siteID := range order {
		wg.Add(1)
		go func(siteID string, group []*Delivery) {
			defer wg.Done()
			d.processSite(siteID, group)
		}(siteID, bySite[siteID])
	}
	wg.Wait()
}

func (d *Dispatcher) processSite(siteID string, deliveries []*Delivery) {
	marker := d.perf.StartOperation("dispatch_site_batch", siteID)
	defer marker.Complete()

	events := []*analytics.Event{}
	for _, delivery := range deliveries {
		events = append(events, delivery.Message.Events...)
	}
	marker.AddMetadata("events", len(events))
	marker.AddMetadata("messages", len(deliveries))

	// Resolution prefers the storage uuid carried on the wire.
	resolveKey := siteID
	if uuid := deliveries[0].Message.SiteUUID; uuid != "" {
		resolveKey = uuid
	}
	writer, err := d.resolve(resolveKey)
	if err != nil {
		d.logger.Dispatch().Warn("Site not resolvable, retrying batch",
			"siteId", siteID, "error", err.Error(), "events", len(events))
		marker.SetError(err)
		d.retryAll(siteID, deliveries)
		return
	}

	for offset := 0; offset < len(events); offset += d.chunkSize {
		end := offset + d.chunkSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[offset:end]

		result := writer.Insert(siteID, chunk)
		if result == nil || !result.Success {
			reason := "insert failed"
			if result != nil && result.Error != "" {
				reason = result.Error
			}
			d.logger.Dispatch().Error("Chunk write failed, retrying site batch",
				"siteId", siteID, "chunkStart", offset, "chunkSize", len(chunk), "error", reason)
			marker.SetSuccess(false)
			d.retryAll(siteID, deliveries)
			return
		}
	}

	for _, delivery := range deliveries {
		if err := delivery.Ack(); err != nil {
			d.logger.Dispatch().Error("Ack failed",
				"siteId", siteID, "error", err.Error())
		}
	}
	marker.SetSuccess(true)
	d.logger.Dispatch().Info("Site batch dispatched",
		"siteId", siteID, "events", len(events), "messages", len(deliveries))
}

func (d *Dispatcher) retryAll(siteID string, deliveries []*Delivery) {
	for _, delivery := range deliveries {
		if err := delivery.Retry(d.retryDelay); err != nil {
			d.logger.Dispatch().Error("Retry scheduling failed",
				"siteId", siteID, "error", err.Error())
		}
	}
}

// Run consumes the channel, gathering deliveries into rounds bounded by the
// configured batch size and linger, and dispatches each round. It blocks
// until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, channel DeliveryChannel) error {
	pending := make(chan *Delivery, config.KafkaBatchSize*2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.collect(ctx, pending)
	}()

	err := channel.Consume(ctx, func(delivery *Delivery) {
		select {
		case pending <- delivery:
		case <-ctx.Done():
		}
	})

	wg.Wait()
	return err
}

func (d *Dispatcher) collect(ctx context.Context, pending chan *Delivery) {
	batch := []*Delivery{}
	linger := time.NewTimer(config.KafkaBatchLinger)
	defer linger.Stop()

	flush := func() {
		if len(batch) > 0 {
			d.ProcessBatch(batch)
			batch = []*Delivery{}
		}
	}

	for {
		select {
		case delivery := <-pending:
			batch = append(batch, delivery)
			if len(batch) >= config.KafkaBatchSize {
				flush()
			}
		case <-linger.C:
			flush()
			linger.Reset(config.KafkaBatchLinger)
		case <-ctx.Done():
			flush()
			return
		}
	}
}
