// Package ratelimit budgets upstream requests: a token bucket smooths bursts
// and a daily quota mirrors the provider's plan limit.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/hknews/internal/logger"
)

// ErrQuotaExhausted is returned once the daily budget is spent.
var ErrQuotaExhausted = errors.New("daily upstream quota exhausted")

// Limiter is safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter

	mu        sync.Mutex
	used      int
	maxDaily  int
	resetTime time.Time
	denied    int
	now       func() time.Time
}

// New creates a limiter allowing rps requests per second (burst of one per
// whole rps, minimum one) and maxDaily per 24h. rps <= 0 disables smoothing;
// maxDaily <= 0 disables the quota.
func New(rps float64, maxDaily int) *Limiter {
	l := &Limiter{
		maxDaily: maxDaily,
		now:      time.Now,
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(rps), burst)
	}
	l.resetTime = l.now().Add(24 * time.Hour)
	return l
}

// Wait blocks until a request may be sent, then charges it to the daily
// quota. The quota is checked first so an exhausted budget fails fast.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.reserve(); err != nil {
		return err
	}
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			l.refund()
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	return nil
}

func (l *Limiter) reserve() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if l.maxDaily > 0 && l.used >= l.maxDaily {
		l.denied++
		logger.Warn("upstream quota reached", "used", l.used, "limit", l.maxDaily)
		return ErrQuotaExhausted
	}
	l.used++
	return nil
}

func (l *Limiter) refund() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used > 0 {
		l.used--
	}
}

// checkReset resets counters if reset time has passed. Caller holds mu.
func (l *Limiter) checkReset() {
	if l.now().After(l.resetTime) {
		logger.Info("resetting upstream quota", "used", l.used, "denied", l.denied)
		l.used = 0
		l.denied = 0
		l.resetTime = l.now().Add(24 * time.Hour)
	}
}

// Remaining returns requests left today, or -1 with no quota.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if l.maxDaily <= 0 {
		return -1
	}
	return l.maxDaily - l.used
}

// GetStats returns current rate limiter statistics
func (l *Limiter) GetStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"upstream_used":   l.used,
		"upstream_limit":  l.maxDaily,
		"upstream_denied": l.denied,
		"reset_time":      l.resetTime.Format(time.RFC3339),
	}
}
