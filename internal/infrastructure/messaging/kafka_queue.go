package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/observability/logging"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// KafkaQueue is the broker-backed delivery channel for queued mode. Messages
// are keyed by site id through the hash partitioner, so one site's batches
// always land on one partition and stay ordered. Retry marks the original
// offset and re-publishes the message on a timer, keeping the consumer path
// free of sleeps; with the fresh ULIDs assigned at insert time this yields
// at-least-once delivery.
type KafkaQueue struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string
	logger   *logging.ChanneledLogger
	timers   sync.WaitGroup
}

// NewKafkaQueue connects the producer and consumer group from config.
func NewKafkaQueue(logger *logging.ChanneledLogger) (*KafkaQueue, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_3_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Flush.Messages = config.KafkaBatchSize
	cfg.Producer.Flush.Frequency = config.KafkaBatchLinger
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}

	producer, err := sarama.NewSyncProducer(config.KafkaBrokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	group, err := sarama.NewConsumerGroup(config.KafkaBrokers, config.KafkaGroupID, cfg)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	logger.Queue().Info("Kafka delivery channel connected",
		"brokers", config.KafkaBrokers, "topic", config.KafkaTopic, "groupId", config.KafkaGroupID)

	return &KafkaQueue{
		producer: producer,
		group:    group,
		topic:    config.KafkaTopic,
		logger:   logger,
	}, nil
}

// Publish sends one message keyed by its site id.
func (q *KafkaQueue) Publish(ctx context.Context, msg *QueueMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}

	partition, offset, err := q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(msg.SiteID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		q.logger.Queue().Error("Kafka publish failed",
			"error", err.Error(), "siteId", msg.SiteID, "events", len(msg.Events))
		return fmt.Errorf("failed to publish event batch: %w", err)
	}

	q.logger.Queue().Debug("Message published",
		"siteId", msg.SiteID, "events", len(msg.Events),
		"partition", partition, "offset", offset)
	return nil
}

// Consume joins the consumer group and invokes the handler per delivery
// until the context is cancelled.
func (q *KafkaQueue) Consume(ctx context.Context, handler func(*Delivery)) error {
	consumer := &groupConsumer{queue: q, handler: handler}
	for {
		if err := q.group.Consume(ctx, []string{q.topic}, consumer); err != nil {
			q.logger.Queue().Error("Consumer group error", "error", err.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close shuts down the consumer group, waits for pending redelivery timers
// and closes the producer.
func (q *KafkaQueue) Close() error {
	groupErr := q.group.Close()
	q.timers.Wait()
	producerErr := q.producer.Close()
	if groupErr != nil {
		return fmt.Errorf("failed to close consumer group: %w", groupErr)
	}
	if producerErr != nil {
		return fmt.Errorf("failed to close producer: %w", producerErr)
	}
	q.logger.Queue().Info("Kafka delivery channel closed")
	return nil
}

// redeliverLater schedules a delayed re-publish off the consumer path.
// Timers are drained in Close before the producer shuts down.
func (q *KafkaQueue) redeliverLater(msg *QueueMessage, delay time.Duration) {
	q.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer q.timers.Done()
		if err := q.Publish(context.Background(), msg); err != nil {
			q.logger.Queue().Error("Redelivery publish failed",
				"error", err.Error(), "siteId", msg.SiteID, "events", len(msg.Events))
		}
	})
}

// groupConsumer adapts sarama's consumer group callbacks to deliveries.
type groupConsumer struct {
	queue   *KafkaQueue
	handler func(*Delivery)
}

func (c *groupConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *groupConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *groupConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			var msg QueueMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				c.queue.logger.Queue().Error("Dropping undecodable message",
					"error", err.Error(), "partition", message.Partition, "offset", message.Offset)
				session.MarkMessage(message, "")
				continue
			}

			delivery := NewDelivery(&msg,
				func() error {
					session.MarkMessage(message, "")
					return nil
				},
				func(delay time.Duration) error {
					// The original offset is marked right away so the
					// partition keeps moving; the re-publish fires later.
					session.MarkMessage(message, "")
					c.queue.redeliverLater(&msg, delay)
					return nil
				},
			)
			c.handler(delivery)

		case <-session.Context().Done():
			return nil
		}
	}
}
