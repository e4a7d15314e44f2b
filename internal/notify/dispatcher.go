package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/kafka"
	"github.com/lurnify/backend-payment/pkg/logger"
	"github.com/lurnify/backend-payment/pkg/retry"
)

// TopicPaymentEvents is the topic lifecycle events are published on.
// Keyed by payment ID so one payment's events stay ordered.
const TopicPaymentEvents = "payment.events"

// publisher is the slice of the Kafka producer the dispatcher needs
type publisher interface {
	ProduceJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

// KafkaDispatcher publishes payment lifecycle events to Kafka. Publish
// failures never reach the caller; the payment record is the source of
// truth and consumers reconcile from it.
type KafkaDispatcher struct {
	producer publisher
	topic    string
	retryCfg *retry.Config
	log      *logger.Logger
	timeout  time.Duration
}

// NewKafkaDispatcher creates a dispatcher backed by the given producer
func NewKafkaDispatcher(producer *kafka.Producer) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer: producer,
		topic:    TopicPaymentEvents,
		retryCfg: &retry.Config{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		log:     logger.Get(),
		timeout: 10 * time.Second,
	}
}

// Notify publishes the event, retrying transient failures in the
// background so the payment flow is never held up.
func (d *KafkaDispatcher) Notify(ctx context.Context, event *service.PaymentEvent) {
	go d.publish(event)
}

func (d *KafkaDispatcher) publish(event *service.PaymentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	result := retry.Do(ctx, d.retryCfg, func(ctx context.Context) error {
		return d.producer.ProduceJSON(ctx, d.topic, event.PaymentID, event, map[string]string{
			"event_type": event.Type,
		})
	})
	if result.Err != nil {
		d.log.Error(fmt.Sprintf("Failed to publish %s for payment %s after %d attempts: %v",
			event.Type, event.PaymentID, result.Attempts, result.LastError))
		metrics.RecordNotificationFailure(ctx, event.Type)
	}
}

// NoopDispatcher discards events. Used when Kafka is not configured.
type NoopDispatcher struct{}

// Notify does nothing
func (NoopDispatcher) Notify(ctx context.Context, event *service.PaymentEvent) {}
