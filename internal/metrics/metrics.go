package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	UpstreamRequests     int64
	UpstreamFailures     int64
	CacheHits            int64
	StaleFallbacks       int64
	EmptyResults         int64
	ArticlesAccepted     int64
	ArticlesRejected     int64
	TelegramMessagesSent int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementUpstreamRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpstreamRequests++
}

func (m *Metrics) IncrementUpstreamFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpstreamFailures++
}

func (m *Metrics) IncrementCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *Metrics) IncrementStaleFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StaleFallbacks++
}

func (m *Metrics) IncrementEmptyResults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmptyResults++
}

func (m *Metrics) IncrementTelegramMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TelegramMessagesSent++
}

// AddFiltered records one filter pass.
func (m *Metrics) AddFiltered(accepted, rejected int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesAccepted += int64(accepted)
	m.ArticlesRejected += int64(rejected)
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Healthy reports the status set by the last run.
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"upstream_requests":          m.UpstreamRequests,
		"upstream_failures":          m.UpstreamFailures,
		"cache_hits":                 m.CacheHits,
		"stale_fallbacks":            m.StaleFallbacks,
		"empty_results":              m.EmptyResults,
		"articles_accepted":          m.ArticlesAccepted,
		"articles_rejected":          m.ArticlesRejected,
		"telegram_messages_sent":     m.TelegramMessagesSent,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
