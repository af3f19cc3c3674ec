package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/performance"
)

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)
	return logger
}

// fakeWriter records every chunk it receives and can fail a chosen call.
type fakeWriter struct {
	mu         sync.Mutex
	chunkSizes []int
	failAtCall int // 1-based call number to fail, 0 = never
	calls      int
}

func (w *fakeWriter) Insert(siteID string, events []*analytics.Event) *analytics.InsertResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.chunkSizes = append(w.chunkSizes, len(events))
	if w.failAtCall != 0 && w.calls == w.failAtCall {
		return &analytics.InsertResult{Success: false, Error: "simulated write failure"}
	}
	return &analytics.InsertResult{Success: true, Inserted: len(events)}
}

// settled tracks delivery settlement for assertions.
type settled struct {
	mu      sync.Mutex
	acked   int
	retried int
}

func (s *settled) delivery(msg *QueueMessage) *Delivery {
	return NewDelivery(msg,
		func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.acked++
			return nil
		},
		func(time.Duration) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.retried++
			return nil
		},
	)
}

func makeEvents(n int) []*analytics.Event {
	events := make([]*analytics.Event, n)
	for i := range events {
		events[i] = &analytics.Event{Event: "page_view"}
	}
	return events
}

func newTestDispatcher(t *testing.T, chunkSize int, resolve WriterResolver) *Dispatcher {
	return &Dispatcher{
		resolve:    resolve,
		chunkSize:  chunkSize,
		retryDelay: time.Millisecond,
		logger:     newTestLogger(t),
		perf:       performance.NewTracker(),
	}
}

func TestProcessBatchGroupsBySite(t *testing.T) {
	writers := map[string]*fakeWriter{
		"site-a": {},
		"site-b": {},
	}
	d := newTestDispatcher(t, 200, func(siteID string) (analytics.EventWriter, error) {
		return writers[siteID], nil
	})

	track := &settled{}
	d.ProcessBatch([]*Delivery{
		track.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(5))),
		track.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(3))),
		track.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(2))),
		track.delivery(NewSiteEventMessage("site-b", "sqlite3", makeEvents(4))),
	})

	assert.Equal(t, []int{10}, writers["site-a"].chunkSizes,
		"three messages for one site coalesce into a single chunk")
	assert.Equal(t, []int{4}, writers["site-b"].chunkSizes)
	assert.Equal(t, 4, track.acked)
	assert.Equal(t, 0, track.retried)
}

func TestProcessBatchResolvesBySiteUUID(t *testing.T) {
	writer := &fakeWriter{}
	resolvedKeys := []string{}
	d := newTestDispatcher(t, 200, func(siteID string) (analytics.EventWriter, error) {
		resolvedKeys = append(resolvedKeys, siteID)
		return writer, nil
	})

	msg := NewSiteEventMessage("acme", "sqlite3", makeEvents(2))
	msg.SiteUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

	track := &settled{}
	d.ProcessBatch([]*Delivery{track.delivery(msg)})

	assert.Equal(t, []string{"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"}, resolvedKeys,
		"the storage uuid on the wire wins over the site id")
	assert.Equal(t, 1, track.acked)
}

func TestProcessBatchChunksLargeSites(t *testing.T) {
	writer := &fakeWriter{}
	d := newTestDispatcher(t, 200, func(string) (analytics.EventWriter, error) {
		return writer, nil
	})

	track := &settled{}
	d.ProcessBatch([]*Delivery{
		track.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(450))),
	})

	assert.Equal(t, []int{200, 200, 50}, writer.chunkSizes)
	assert.Equal(t, 1, track.acked)
}

func TestProcessBatchFailureRetriesWholeSite(t *testing.T) {
	writers := map[string]*fakeWriter{
		"site-a": {failAtCall: 2},
		"site-b": {},
	}
	d := newTestDispatcher(t, 4, func(siteID string) (analytics.EventWriter, error) {
		return writers[siteID], nil
	})

	siteA := &settled{}
	siteB := &settled{}
	d.ProcessBatch([]*Delivery{
		siteA.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(5))),
		siteA.delivery(NewSiteEventMessage("site-a", "sqlite3", makeEvents(3))),
		siteB.delivery(NewSiteEventMessage("site-b", "sqlite3", makeEvents(4))),
	})

	assert.Equal(t, 0, siteA.acked, "no ack for a site with a failed chunk")
	assert.Equal(t, 2, siteA.retried, "every delivery of the failed site retries")
	assert.Equal(t, 1, siteB.acked, "other sites settle independently")
	assert.Equal(t, 0, siteB.retried)
	assert.Equal(t, 2, writers["site-a"].calls, "writing stops at the failed chunk")
}

func TestProcessBatchUnresolvableSiteRetries(t *testing.T) {
	d := newTestDispatcher(t, 200, func(string) (analytics.EventWriter, error) {
		return nil, errors.New("tenant not registered")
	})

	track := &settled{}
	d.ProcessBatch([]*Delivery{
		track.delivery(NewSiteEventMessage("site-x", "sqlite3", makeEvents(2))),
	})

	assert.Equal(t, 0, track.acked)
	assert.Equal(t, 1, track.retried)
}

func TestProcessBatchEmpty(t *testing.T) {
	d := newTestDispatcher(t, 200, func(string) (analytics.EventWriter, error) {
		t.Fatal("resolver must not be called for an empty batch")
		return nil, nil
	})
	d.ProcessBatch(nil)
}

func TestMemoryQueueRedelivery(t *testing.T) {
	q := NewMemoryQueue(newTestLogger(t))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := NewSiteEventMessage("site-a", "sqlite3", makeEvents(1))
	require.NoError(t, q.Publish(ctx, msg))

	received := make(chan *Delivery, 2)
	go q.Consume(ctx, func(d *Delivery) { received <- d })

	first := <-received
	require.NoError(t, first.Retry(time.Millisecond))

	select {
	case second := <-received:
		assert.Equal(t, "site-a", second.Message.SiteID)
		require.NoError(t, second.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("retried message was not redelivered")
	}
}
