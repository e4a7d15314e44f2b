package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lurnify/backend-payment/pkg/telemetry"
)

var (
	// Payment lifecycle counters
	PaymentsInitialized *telemetry.Counter
	PaymentsCompleted   *telemetry.Counter
	PaymentsFailed      *telemetry.Counter
	PaymentsRefunded    *telemetry.Counter
	PaymentsExpired     *telemetry.Counter

	// Polling counters
	PollAttempts  *telemetry.Counter
	PollingErrors *telemetry.Counter

	// Webhook counters
	WebhooksReceived *telemetry.Counter
	WebhooksRejected *telemetry.Counter

	// Audit and notification counters
	AuditWriteFailures   *telemetry.Counter
	NotificationFailures *telemetry.Counter

	// Histograms
	VerifyDuration *telemetry.Histogram
	PaymentAmount  *telemetry.Histogram

	// Gauges
	PendingPayments *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all payment metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	PaymentsInitialized, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_initialized_total",
		Description: "Total number of payments initialized",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsCompleted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_completed_total",
		Description: "Total number of payments completed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_failed_total",
		Description: "Total number of failed payments",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsRefunded, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_refunded_total",
		Description: "Total number of refunded payments",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_expired_total",
		Description: "Total number of payments failed by expiry cleanup",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PollAttempts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_poll_attempts_total",
		Description: "Total number of verification poll attempts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PollingErrors, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_polling_errors_total",
		Description: "Total number of soft gateway errors during polling",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksReceived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_webhooks_received_total",
		Description: "Total number of webhooks received",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_webhooks_rejected_total",
		Description: "Total number of webhooks rejected by signature checks",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AuditWriteFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_audit_write_failures_total",
		Description: "Total number of swallowed audit log write failures",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_notification_failures_total",
		Description: "Total number of failed notification dispatches",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	VerifyDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "payment_verify_duration_seconds",
		Description: "Duration of gateway verification calls",
		Unit:        "s",
	}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30})
	if err != nil {
		return err
	}

	PaymentAmount, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "payment_amount",
		Description: "Payment amounts distribution",
		Unit:        "1",
	}, []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000, 500000})
	if err != nil {
		return err
	}

	PendingPayments, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "payment_pending",
		Description: "Current number of pending payments",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordPaymentInitialized records a payment creation
func RecordPaymentInitialized(ctx context.Context, method, currency string, amount float64) {
	if PaymentsInitialized != nil {
		PaymentsInitialized.Inc(ctx,
			attribute.String("method", method),
			attribute.String("currency", currency),
		)
	}
	if PaymentAmount != nil {
		PaymentAmount.Record(ctx, amount,
			attribute.String("currency", currency),
		)
	}
	if PendingPayments != nil {
		PendingPayments.Inc(ctx)
	}
}

// RecordPaymentCompleted records a successful completion
func RecordPaymentCompleted(ctx context.Context, method string) {
	if PaymentsCompleted != nil {
		PaymentsCompleted.Inc(ctx, attribute.String("method", method))
	}
	if PendingPayments != nil {
		PendingPayments.Dec(ctx)
	}
}

// RecordPaymentFailed records a failure with its reason
func RecordPaymentFailed(ctx context.Context, method, reason string) {
	if PaymentsFailed != nil {
		PaymentsFailed.Inc(ctx,
			attribute.String("method", method),
			attribute.String("reason", reason),
		)
	}
	if PendingPayments != nil {
		PendingPayments.Dec(ctx)
	}
}

// RecordPaymentRefunded records a refund
func RecordPaymentRefunded(ctx context.Context, method string) {
	if PaymentsRefunded != nil {
		PaymentsRefunded.Inc(ctx, attribute.String("method", method))
	}
}

// RecordPaymentExpired records an expiry-forced failure
func RecordPaymentExpired(ctx context.Context, method string) {
	if PaymentsExpired != nil {
		PaymentsExpired.Inc(ctx, attribute.String("method", method))
	}
	if PendingPayments != nil {
		PendingPayments.Dec(ctx)
	}
}

// RecordPollAttempt records one verification attempt
func RecordPollAttempt(ctx context.Context, gateway string, durationSeconds float64) {
	if PollAttempts != nil {
		PollAttempts.Inc(ctx, attribute.String("gateway", gateway))
	}
	if VerifyDuration != nil {
		VerifyDuration.Record(ctx, durationSeconds, attribute.String("gateway", gateway))
	}
}

// RecordPollingError records a tolerated gateway error
func RecordPollingError(ctx context.Context, gateway string) {
	if PollingErrors != nil {
		PollingErrors.Inc(ctx, attribute.String("gateway", gateway))
	}
}

// RecordWebhookReceived records a webhook receipt
func RecordWebhookReceived(ctx context.Context, provider, eventType string) {
	if WebhooksReceived != nil {
		WebhooksReceived.Inc(ctx,
			attribute.String("provider", provider),
			attribute.String("event_type", eventType),
		)
	}
}

// RecordWebhookRejected records a signature rejection
func RecordWebhookRejected(ctx context.Context, provider string) {
	if WebhooksRejected != nil {
		WebhooksRejected.Inc(ctx, attribute.String("provider", provider))
	}
}

// RecordAuditWriteFailure records a swallowed audit write failure
func RecordAuditWriteFailure(ctx context.Context, eventType string) {
	if AuditWriteFailures != nil {
		AuditWriteFailures.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordNotificationFailure records a failed event dispatch
func RecordNotificationFailure(ctx context.Context, eventType string) {
	if NotificationFailures != nil {
		NotificationFailures.Inc(ctx, attribute.String("event_type", eventType))
	}
}
