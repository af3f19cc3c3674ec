package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
)

// ErrQueueClosed is returned for publishes after Close.
var ErrQueueClosed = errors.New("delivery queue closed")

const memoryQueueDepth = 4096

// MemoryQueue is the in-process delivery channel used when no broker is
// configured. Redelivery is a timer that re-enqueues the message, so retry
// survives only as long as the process does.
type MemoryQueue struct {
	messages chan *QueueMessage
	logger   *logging.ChanneledLogger

	closeOnce sync.Once
	closed    chan struct{}
	timers    sync.WaitGroup
}

// NewMemoryQueue creates a bounded in-process queue.
func NewMemoryQueue(logger *logging.ChanneledLogger) *MemoryQueue {
	return &MemoryQueue{
		messages: make(chan *QueueMessage, memoryQueueDepth),
		logger:   logger,
		closed:   make(chan struct{}),
	}
}

// Publish enqueues one message, blocking while the queue is full.
func (q *MemoryQueue) Publish(ctx context.Context, msg *QueueMessage) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.messages <- msg:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume invokes the handler for each message until the context is
// cancelled or the queue is closed.
func (q *MemoryQueue) Consume(ctx context.Context, handler func(*Delivery)) error {
	for {
		select {
		case msg := <-q.messages:
			handler(q.wrap(msg))
		case <-q.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *MemoryQueue) wrap(msg *QueueMessage) *Delivery {
	return NewDelivery(msg,
		func() error { return nil },
		func(delay time.Duration) error {
			q.timers.Add(1)
			time.AfterFunc(delay, func() {
				defer q.timers.Done()
				if err := q.Publish(context.Background(), msg); err != nil {
					q.logger.Queue().Error("Redelivery dropped",
						"error", err.Error(), "siteId", msg.SiteID, "events", len(msg.Events))
					return
				}
				q.logger.Queue().Info("Message requeued",
					"siteId", msg.SiteID, "events", len(msg.Events), "delay", delay)
			})
			return nil
		},
	)
}

// Close stops the queue and waits for pending redelivery timers.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	q.timers.Wait()
	return nil
}
