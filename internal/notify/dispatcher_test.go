package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/logger"
	"github.com/lurnify/backend-payment/pkg/retry"
)

// fakeProducer fails the first N produce calls, then succeeds
type fakeProducer struct {
	mu       sync.Mutex
	failures int
	calls    int
	topics   []string
	keys     []string
}

func (f *fakeProducer) ProduceJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unavailable")
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	return nil
}

func newTestDispatcher(producer publisher, maxRetries int) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer: producer,
		topic:    TopicPaymentEvents,
		retryCfg: &retry.Config{
			MaxRetries:      maxRetries,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2.0,
		},
		log:     logger.Get(),
		timeout: time.Second,
	}
}

func testEvent() *service.PaymentEvent {
	return &service.PaymentEvent{
		Type:       service.EventTypeCompleted,
		PaymentID:  "pay-1",
		UserID:     "user-1",
		OccurredAt: time.Now().UTC(),
	}
}

func TestKafkaDispatcherRetriesTransientFailures(t *testing.T) {
	producer := &fakeProducer{failures: 2}
	d := newTestDispatcher(producer, 3)

	d.publish(testEvent())

	if producer.calls != 3 {
		t.Errorf("Expected 3 produce attempts, got %d", producer.calls)
	}
	if len(producer.topics) != 1 || producer.topics[0] != TopicPaymentEvents {
		t.Errorf("Expected one record on %s, got %v", TopicPaymentEvents, producer.topics)
	}
	if producer.keys[0] != "pay-1" {
		t.Errorf("Expected record keyed by payment ID, got %q", producer.keys[0])
	}
}

func TestKafkaDispatcherGivesUpAfterMaxRetries(t *testing.T) {
	producer := &fakeProducer{failures: 100}
	d := newTestDispatcher(producer, 2)

	d.publish(testEvent())

	if producer.calls != 3 {
		t.Errorf("Expected 3 produce attempts (initial + 2 retries), got %d", producer.calls)
	}
	if len(producer.topics) != 0 {
		t.Errorf("Expected no published records, got %d", len(producer.topics))
	}
}
