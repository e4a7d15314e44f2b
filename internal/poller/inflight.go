package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lurnify/backend-payment/pkg/logger"
	"github.com/lurnify/backend-payment/pkg/redis"
)

// InflightMarker claims a payment for one verification chain so that
// two pollers (or a poller and a sweep) do not hammer the gateway for
// the same record at once.
type InflightMarker interface {
	TryAcquire(ctx context.Context, paymentID string, ttl time.Duration) bool
	Release(ctx context.Context, paymentID string)
}

// LocalMarker tracks in-flight chains in process memory. Suitable for
// a single worker instance and for tests.
type LocalMarker struct {
	inflight sync.Map
}

// NewLocalMarker creates an in-process marker
func NewLocalMarker() *LocalMarker {
	return &LocalMarker{}
}

// TryAcquire claims a payment, returning false if already claimed
func (m *LocalMarker) TryAcquire(ctx context.Context, paymentID string, ttl time.Duration) bool {
	_, loaded := m.inflight.LoadOrStore(paymentID, time.Now())
	return !loaded
}

// Release frees a claim
func (m *LocalMarker) Release(ctx context.Context, paymentID string) {
	m.inflight.Delete(paymentID)
}

const redisMarkerPrefix = "payment:poll:inflight:"

// RedisMarker claims payments via SET NX so the claim holds across
// worker replicas and survives restarts until the TTL lapses.
type RedisMarker struct {
	client *redis.Client
}

// NewRedisMarker creates a Redis-backed marker
func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

// TryAcquire claims a payment via SET NX. Redis errors fail open: a
// duplicate poll is harmless because transitions go through the
// conditional status swap.
func (m *RedisMarker) TryAcquire(ctx context.Context, paymentID string, ttl time.Duration) bool {
	ok, err := m.client.SetNX(ctx, redisMarkerPrefix+paymentID, "1", ttl).Result()
	if err != nil {
		logger.Get().Warn(fmt.Sprintf("Failed to acquire poll marker for payment %s: %v", paymentID, err))
		return true
	}
	return ok
}

// Release frees a claim
func (m *RedisMarker) Release(ctx context.Context, paymentID string) {
	if err := m.client.Del(ctx, redisMarkerPrefix+paymentID).Err(); err != nil {
		logger.Get().Warn(fmt.Sprintf("Failed to release poll marker for payment %s: %v", paymentID, err))
	}
}
