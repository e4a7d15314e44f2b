package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lurnify/backend-payment/internal/repository"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/logger"
)

// SweeperConfig contains configuration for the sweep worker
type SweeperConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize caps how many payments one sweep picks up
	BatchSize int
	// CreatedWithin limits the sweep to recently created payments;
	// older pending records are left to the expiry pass
	CreatedWithin time.Duration
	// NotPolledSince keeps the sweep off payments an active chain
	// touched recently
	NotPolledSince time.Duration
	// ExpiryBatchSize caps how many expired payments one pass closes
	ExpiryBatchSize int
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		ScanInterval:    30 * time.Second,
		BatchSize:       100,
		CreatedWithin:   time.Hour,
		NotPolledSince:  30 * time.Second,
		ExpiryBatchSize: 100,
	}
}

// Sweeper re-attaches verification chains to pending payments that
// lost theirs (worker restart, crashed chain) and closes out payments
// whose polling window has passed.
type Sweeper struct {
	repo      repository.PaymentRepository
	service   service.PaymentService
	scheduler *Scheduler
	config    *SweeperConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	totalSwept   int64
	totalExpired int64
	lastScanTime time.Time
}

// NewSweeper creates a sweep worker
func NewSweeper(
	repo repository.PaymentRepository,
	svc service.PaymentService,
	scheduler *Scheduler,
	config *SweeperConfig,
) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	return &Sweeper{
		repo:      repo,
		service:   svc,
		scheduler: scheduler,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the sweep worker
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting payment sweeper")

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the sweep worker
func (w *Sweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping payment sweeper")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Payment sweeper stopped")
}

// loop periodically sweeps orphaned payments and expires stale ones
func (w *Sweeper) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)
	w.expire(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
			w.expire(ctx)
		}
	}
}

// sweep picks up pollable payments without an active chain and hands
// them to the scheduler.
func (w *Sweeper) sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	pollable, err := w.repo.ListPollable(ctx, time.Now().UTC(), repository.SweepCriteria{
		CreatedWithin:  w.config.CreatedWithin,
		NotPolledSince: w.config.NotPolledSince,
		Limit:          w.config.BatchSize,
	})
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list pollable payments: %v", err))
		return
	}
	if len(pollable) == 0 {
		return
	}

	scheduled := 0
	for _, payment := range pollable {
		if w.scheduler.Schedule(payment) {
			scheduled++
		}
	}
	if scheduled > 0 {
		w.log.Info(fmt.Sprintf("Swept %d orphaned payments back into polling", scheduled))
		w.mu.Lock()
		w.totalSwept += int64(scheduled)
		w.mu.Unlock()
	}
}

// expire closes out pending payments whose polling window has passed
func (w *Sweeper) expire(ctx context.Context) {
	expired, err := w.repo.ListExpired(ctx, time.Now().UTC(), w.config.ExpiryBatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list expired payments: %v", err))
		return
	}
	if len(expired) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("Found %d expired payments to close", len(expired)))

	for _, payment := range expired {
		if err := w.service.ExpirePayment(ctx, payment.ID); err != nil {
			w.log.Error(fmt.Sprintf("Failed to expire payment %s: %v", payment.ID, err))
			continue
		}
		w.mu.Lock()
		w.totalExpired++
		w.mu.Unlock()
	}
}

// GetStats returns sweeper statistics
func (w *Sweeper) GetStats() *SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &SweeperStats{
		IsRunning:    w.running,
		TotalSwept:   w.totalSwept,
		TotalExpired: w.totalExpired,
		LastScanTime: w.lastScanTime,
	}
}

// SweeperStats contains sweeper statistics
type SweeperStats struct {
	IsRunning    bool      `json:"is_running"`
	TotalSwept   int64     `json:"total_swept"`
	TotalExpired int64     `json:"total_expired"`
	LastScanTime time.Time `json:"last_scan_time"`
}
