package poller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/logger"
)

// SchedulerConfig contains configuration for the polling scheduler
type SchedulerConfig struct {
	// BaseDelay is the delay before the first verification attempt
	BaseDelay time.Duration
	// MaxShift caps the exponential multiplier at 2^MaxShift
	MaxShift uint
	// JitterMin/JitterMax bound the random spread added to each delay,
	// as a fraction of the computed delay
	JitterMin float64
	JitterMax float64
	// SoftErrorLimit is how many gateway errors one chain tolerates;
	// the payment is force-failed when the count exceeds it
	SoftErrorLimit int
	// MarkerTTL is how long an in-flight claim is held before it is
	// considered abandoned
	MarkerTTL time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		BaseDelay:      5 * time.Second,
		MaxShift:       8,
		JitterMin:      0.10,
		JitterMax:      0.30,
		SoftErrorLimit: 10,
		MarkerTTL:      45 * time.Minute,
	}
}

// Scheduler runs one backoff chain per pending payment, polling the
// gateway until the payment resolves, the poll budget runs out, or the
// polling window closes.
type Scheduler struct {
	service service.PaymentService
	markers InflightMarker
	config  *SchedulerConfig
	log     *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	chainsStarted   int64
	chainsResolved  int64
	chainsExhausted int64
	totalPolls      int64
	totalErrors     int64
}

// NewScheduler creates a polling scheduler
func NewScheduler(svc service.PaymentService, markers InflightMarker, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if markers == nil {
		markers = NewLocalMarker()
	}
	return &Scheduler{
		service: svc,
		markers: markers,
		config:  config,
		log:     logger.Get(),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("polling scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info("Starting polling scheduler")
	return nil
}

// Stop stops the scheduler and waits for in-flight chains to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("Stopping polling scheduler")
	close(s.stopCh)
	s.cancel()
	s.wg.Wait()
	s.log.Info("Polling scheduler stopped")
}

// Schedule starts a verification chain for a payment. Returns false if
// the scheduler is stopped, the payment is no longer pollable, or a
// chain is already in flight for it.
func (s *Scheduler) Schedule(payment *domain.Payment) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	ctx := s.ctx
	s.mu.Unlock()

	if !payment.Pollable(time.Now().UTC()) {
		return false
	}
	if !s.markers.TryAcquire(ctx, payment.ID, s.config.MarkerTTL) {
		return false
	}

	s.mu.Lock()
	s.chainsStarted++
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runChain(ctx, payment.ID, payment.PollCount)
	return true
}

// runChain drives one payment through delay/verify rounds until it
// reaches a terminal state or a budget runs out.
func (s *Scheduler) runChain(ctx context.Context, paymentID string, startCount int) {
	defer s.wg.Done()
	defer s.markers.Release(context.Background(), paymentID)

	softErrors := 0
	attempt := startCount

	for {
		attempt++
		if !s.sleep(ctx, s.delayFor(attempt)) {
			return
		}

		payment, err := s.service.GetPayment(ctx, paymentID)
		if err != nil {
			s.log.Error(fmt.Sprintf("Failed to load payment %s for polling: %v", paymentID, err))
			return
		}

		now := time.Now().UTC()
		if payment.IsTerminal() || !payment.AutoVerificationEnabled {
			s.markResolved()
			return
		}
		if payment.PollingExpired(now) {
			if err := s.service.ExpirePayment(ctx, paymentID); err != nil {
				s.log.Error(fmt.Sprintf("Failed to expire payment %s: %v", paymentID, err))
			}
			s.markResolved()
			return
		}
		if payment.PollCount >= domain.MaxPollCount {
			s.forceFail(ctx, paymentID)
			return
		}

		updated, err := s.service.Verify(ctx, paymentID, nil)
		s.mu.Lock()
		s.totalPolls++
		s.mu.Unlock()

		if err != nil {
			softErrors++
			s.mu.Lock()
			s.totalErrors++
			s.mu.Unlock()
			s.log.Warn(fmt.Sprintf("Verification attempt failed: payment_id=%s attempt=%d soft_errors=%d: %v",
				paymentID, attempt, softErrors, err))
			if softErrors > s.config.SoftErrorLimit {
				s.forceFail(ctx, paymentID)
				return
			}
			continue
		}

		if updated.IsTerminal() {
			s.markResolved()
			return
		}
		// Resync with the shared counter; webhooks and manual verify
		// calls advance it between our rounds.
		attempt = updated.PollCount
	}
}

// delayFor computes the delay before the given attempt number:
// exponential in the attempt, capped, with a random spread on top.
func (s *Scheduler) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > s.config.MaxShift {
		shift = s.config.MaxShift
	}
	base := s.config.BaseDelay * time.Duration(1<<shift)
	spread := s.config.JitterMin + rand.Float64()*(s.config.JitterMax-s.config.JitterMin)
	return base + time.Duration(float64(base)*spread)
}

// sleep waits for d, returning false if the scheduler is stopping
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) forceFail(ctx context.Context, paymentID string) {
	if err := s.service.ForceFail(ctx, paymentID, service.ReasonPollingExhausted); err != nil {
		s.log.Error(fmt.Sprintf("Failed to force-fail payment %s: %v", paymentID, err))
	}
	s.mu.Lock()
	s.chainsExhausted++
	s.mu.Unlock()
}

func (s *Scheduler) markResolved() {
	s.mu.Lock()
	s.chainsResolved++
	s.mu.Unlock()
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() *SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SchedulerStats{
		IsRunning:       s.running,
		ChainsStarted:   s.chainsStarted,
		ChainsResolved:  s.chainsResolved,
		ChainsExhausted: s.chainsExhausted,
		TotalPolls:      s.totalPolls,
		TotalErrors:     s.totalErrors,
	}
}

// SchedulerStats contains scheduler statistics
type SchedulerStats struct {
	IsRunning       bool  `json:"is_running"`
	ChainsStarted   int64 `json:"chains_started"`
	ChainsResolved  int64 `json:"chains_resolved"`
	ChainsExhausted int64 `json:"chains_exhausted"`
	TotalPolls      int64 `json:"total_polls"`
	TotalErrors     int64 `json:"total_errors"`
}
