package observability

import (
	"strconv"
	"sync"
	"time"
)

// Counter names for operational signals that do not map to a request.
const (
	CounterAuditWriteFailures   = "audit_write_failures"
	CounterDeprecatedRBACAccess = "rbac_legacy_global_access"
	CounterDeliveryFailures     = "outbound_delivery_failures"
	CounterAutomationFailures   = "automation_notify_failures"
	CounterSLABreaches          = "sla_breaches"
	CounterSLAScheduleFailures  = "sla_schedule_failures"
	CounterRateLimited          = "rate_limited_requests"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	counters     map[string]int64
	latencyTotal map[string]time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		counters:     make(map[string]int64),
		latencyTotal: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Inc bumps a named counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Counter returns the current value of a named counter.
func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Snapshot copies every counter for exposition.
func (m *Metrics) Snapshot() map[string]int64 {
	out := map[string]int64{}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.counters {
		out[k] = v
	}
	for k, v := range m.requestCount {
		out["requests|"+k] = v
	}
	for k, v := range m.errorCount {
		out["errors|"+k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
