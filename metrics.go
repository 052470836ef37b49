package go_bridgeclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting bridge client
// metrics. This interface allows applications to plug in custom metrics
// implementations (e.g., Prometheus, StatsD, custom logging) for production
// monitoring.
//
// All methods are safe for concurrent use and should be non-blocking.
type MetricsCollector interface {
	// IncrementRequest increments the count of requests sent by relay
	// endpoint (e.g. "/browse", "/upload").
	IncrementRequest(endpoint string)

	// IncrementRetry increments the count of retried attempts.
	IncrementRetry(endpoint string)

	// IncrementAuthRefresh increments the count of credential refreshes
	// triggered by TOKEN_OUTDATED responses.
	IncrementAuthRefresh()

	// IncrementError increments the error counter by error kind
	// (e.g. "transport", "crypto", "auth", "server", "unavailable").
	IncrementError(kind string)

	// RecordRequestLatency records the wall-clock duration of one completed
	// relay operation, successful or not.
	RecordRequestLatency(endpoint string, duration time.Duration)

	// AddBytesReceived adds to the total response bytes counter.
	AddBytesReceived(bytes uint64)
}

// InMemoryMetrics provides a simple in-memory implementation of
// MetricsCollector. Suitable for development, testing, and applications
// that want basic metrics without external dependencies.
//
// All operations are thread-safe using atomic operations and minimal
// locking.
type InMemoryMetrics struct {
	requestsMu sync.RWMutex
	requests   map[string]uint64
	retries    map[string]uint64

	errorsMu sync.RWMutex
	errors   map[string]uint64

	latencyMu sync.RWMutex
	latency   map[string]*latencyStats

	authRefreshes uint64
	bytesReceived uint64
}

// latencyStats tracks latency statistics for one endpoint.
type latencyStats struct {
	count      uint64
	totalNanos uint64
	minNanos   uint64
	maxNanos   uint64
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		requests: make(map[string]uint64),
		retries:  make(map[string]uint64),
		errors:   make(map[string]uint64),
		latency:  make(map[string]*latencyStats),
	}
}

// IncrementRequest increments the request counter for the given endpoint.
func (m *InMemoryMetrics) IncrementRequest(endpoint string) {
	m.requestsMu.Lock()
	m.requests[endpoint]++
	m.requestsMu.Unlock()
}

// IncrementRetry increments the retry counter for the given endpoint.
func (m *InMemoryMetrics) IncrementRetry(endpoint string) {
	m.requestsMu.Lock()
	m.retries[endpoint]++
	m.requestsMu.Unlock()
}

// IncrementAuthRefresh increments the credential refresh counter.
func (m *InMemoryMetrics) IncrementAuthRefresh() {
	atomic.AddUint64(&m.authRefreshes, 1)
}

// IncrementError increments the error counter for the given kind.
func (m *InMemoryMetrics) IncrementError(kind string) {
	m.errorsMu.Lock()
	m.errors[kind]++
	m.errorsMu.Unlock()
}

// RecordRequestLatency records the latency of one operation.
func (m *InMemoryMetrics) RecordRequestLatency(endpoint string, duration time.Duration) {
	nanos := uint64(duration.Nanoseconds())

	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	stats := m.latency[endpoint]
	if stats == nil {
		stats = &latencyStats{minNanos: nanos, maxNanos: nanos}
		m.latency[endpoint] = stats
	}

	stats.count++
	stats.totalNanos += nanos

	if nanos < stats.minNanos {
		stats.minNanos = nanos
	}
	if nanos > stats.maxNanos {
		stats.maxNanos = nanos
	}
}

// AddBytesReceived adds to the total bytes received.
func (m *InMemoryMetrics) AddBytesReceived(bytes uint64) {
	atomic.AddUint64(&m.bytesReceived, bytes)
}

// Getter methods for programmatic access to metrics

// Requests returns the total count of requests for an endpoint.
func (m *InMemoryMetrics) Requests(endpoint string) uint64 {
	m.requestsMu.RLock()
	defer m.requestsMu.RUnlock()
	return m.requests[endpoint]
}

// Retries returns the total count of retries for an endpoint.
func (m *InMemoryMetrics) Retries(endpoint string) uint64 {
	m.requestsMu.RLock()
	defer m.requestsMu.RUnlock()
	return m.retries[endpoint]
}

// AuthRefreshes returns the total count of credential refreshes.
func (m *InMemoryMetrics) AuthRefreshes() uint64 {
	return atomic.LoadUint64(&m.authRefreshes)
}

// Errors returns the total count of errors by kind.
func (m *InMemoryMetrics) Errors(kind string) uint64 {
	m.errorsMu.RLock()
	defer m.errorsMu.RUnlock()
	return m.errors[kind]
}

// AllErrors returns a copy of all error counts by kind.
func (m *InMemoryMetrics) AllErrors() map[string]uint64 {
	m.errorsMu.RLock()
	defer m.errorsMu.RUnlock()

	result := make(map[string]uint64, len(m.errors))
	for k, v := range m.errors {
		result[k] = v
	}
	return result
}

// AvgLatency returns the average latency for an endpoint.
// Returns 0 if no measurements have been recorded.
func (m *InMemoryMetrics) AvgLatency(endpoint string) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()

	stats := m.latency[endpoint]
	if stats == nil || stats.count == 0 {
		return 0
	}
	return time.Duration(stats.totalNanos / stats.count)
}

// MaxLatency returns the maximum latency for an endpoint.
// Returns 0 if no measurements have been recorded.
func (m *InMemoryMetrics) MaxLatency(endpoint string) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()

	stats := m.latency[endpoint]
	if stats == nil {
		return 0
	}
	return time.Duration(stats.maxNanos)
}

// BytesReceived returns the total response bytes observed.
func (m *InMemoryMetrics) BytesReceived() uint64 {
	return atomic.LoadUint64(&m.bytesReceived)
}

// Reset clears all metrics. Useful for testing.
func (m *InMemoryMetrics) Reset() {
	m.requestsMu.Lock()
	m.requests = make(map[string]uint64)
	m.retries = make(map[string]uint64)
	m.requestsMu.Unlock()

	m.errorsMu.Lock()
	m.errors = make(map[string]uint64)
	m.errorsMu.Unlock()

	m.latencyMu.Lock()
	m.latency = make(map[string]*latencyStats)
	m.latencyMu.Unlock()

	atomic.StoreUint64(&m.authRefreshes, 0)
	atomic.StoreUint64(&m.bytesReceived, 0)
}
