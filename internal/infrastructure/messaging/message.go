// Package messaging carries event batches from the ingestion gateway to the
// tenant actors. A delivery channel hands out messages with explicit ack and
// retry so a failed tenant write never silently drops events.
package messaging

import (
	"context"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
)

// MessageTypeSiteEvent is the only message type the dispatch path carries.
const MessageTypeSiteEvent = "site_event"

// QueueMessage is one published batch of events for a single site. SiteUUID
// carries the storage identifier when the tenant has one; consumers fall back
// to SiteID when it is absent.
type QueueMessage struct {
	Type      string             `json:"type"`
	SiteID    string             `json:"siteId"`
	SiteUUID  string             `json:"siteUuid,omitempty"`
	Adapter   string             `json:"adapter,omitempty"`
	Events    []*analytics.Event `json:"events"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewSiteEventMessage wraps a normalized batch for publishing.
func NewSiteEventMessage(siteID, adapter string, events []*analytics.Event) *QueueMessage {
	return &QueueMessage{
		Type:      MessageTypeSiteEvent,
		SiteID:    siteID,
		Adapter:   adapter,
		Events:    events,
		Timestamp: time.Now().UTC(),
	}
}

// Delivery is one consumed message plus its settlement callbacks. Exactly one
// of Ack or Retry should be called; the channel implementation decides what
// each means on the wire.
type Delivery struct {
	Message *QueueMessage

	ack   func() error
	retry func(delay time.Duration) error
}

// NewDelivery builds a delivery around channel-specific settlement hooks.
func NewDelivery(msg *QueueMessage, ack func() error, retry func(time.Duration) error) *Delivery {
	return &Delivery{Message: msg, ack: ack, retry: retry}
}

// Ack marks the message as fully persisted.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Retry schedules the message for redelivery after the delay.
func (d *Delivery) Retry(delay time.Duration) error {
	if d.retry == nil {
		return nil
	}
	return d.retry(delay)
}

// DeliveryChannel is the transport between gateway and dispatcher.
type DeliveryChannel interface {
	// Publish enqueues one message. Messages for the same site are
	// delivered in publish order.
	Publish(ctx context.Context, msg *QueueMessage) error

	// Consume blocks, invoking the handler for each delivery until the
	// context is cancelled.
	Consume(ctx context.Context, handler func(*Delivery)) error

	Close() error
}
