package metrics

import (
	"maps"
	"sort"
	"sync"
	"time"
)

const maxResponseSamples = 1000

// UnroutedHost is the request bucket for hosts that matched no rule.
// Request counts are keyed by routed host only, so arbitrary Host headers
// cannot grow the set of series.
const UnroutedHost = "(unrouted)"

type Metrics struct {
	mutex          sync.RWMutex
	requests       map[string]int64
	selections     map[string]int64
	responseTimes  map[string][]time.Duration
	statusCodes    map[string]map[int]int64
	failures       map[string]int64
	droppedHeaders map[string]int64
	reloads        int64
	reloadFailures int64
	routedHosts    int
	lastReload     time.Time
	startTime      time.Time
}

type Snapshot struct {
	TotalRequests  int64                         `json:"total_requests"`
	Uptime         time.Duration                 `json:"uptime"`
	Strategy       string                        `json:"strategy"`
	Hosts          map[string]int64              `json:"hosts"`
	Destinations   map[string]DestinationMetrics `json:"destinations"`
	Failures       map[string]int64              `json:"failures"`
	DroppedHeaders map[string]int64              `json:"dropped_headers"`
	Reloads        int64                         `json:"reloads"`
	ReloadFailures int64                         `json:"reload_failures"`
	RoutedHosts    int                           `json:"routed_hosts"`
	LastReload     time.Time                     `json:"last_reload"`
}

type DestinationMetrics struct {
	Selections  int64         `json:"selections"`
	Responses   int64         `json:"responses"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

// IncrementRequests counts an inbound request by its routed host. An empty
// host is counted under UnroutedHost.
func (m *Metrics) IncrementRequests(host string) {
	if host == "" {
		host = UnroutedHost
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[host]++
}

func (m *Metrics) RecordSelection(destination string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[destination]++
}

func (m *Metrics) RecordResponse(destination string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[destination] = append(m.responseTimes[destination], duration)

	if len(m.responseTimes[destination]) > maxResponseSamples {
		m.responseTimes[destination] = m.responseTimes[destination][1:]
	}

	if m.statusCodes[destination] == nil {
		m.statusCodes[destination] = make(map[int]int64)
	}
	m.statusCodes[destination][statusCode]++
}

func (m *Metrics) RecordFailure(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[reason]++
}

func (m *Metrics) RecordDroppedHeader(direction string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.droppedHeaders[direction]++
}

func (m *Metrics) RecordReload(at time.Time, hosts int, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !ok {
		m.reloadFailures++
		return
	}

	m.reloads++
	m.routedHosts = hosts
	m.lastReload = at
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:         time.Since(m.startTime),
		Strategy:       strategy,
		Hosts:          maps.Clone(m.requests),
		Destinations:   make(map[string]DestinationMetrics),
		Failures:       maps.Clone(m.failures),
		DroppedHeaders: maps.Clone(m.droppedHeaders),
		Reloads:        m.reloads,
		ReloadFailures: m.reloadFailures,
		RoutedHosts:    m.routedHosts,
		LastReload:     m.lastReload,
	}

	for _, n := range m.requests {
		snap.TotalRequests += n
	}

	allDestinations := make(map[string]bool)
	for dest := range m.selections {
		allDestinations[dest] = true
	}
	for dest := range m.responseTimes {
		allDestinations[dest] = true
	}

	for dest := range allDestinations {
		dm := DestinationMetrics{
			Selections:  m.selections[dest],
			StatusCodes: maps.Clone(m.statusCodes[dest]),
		}

		for _, n := range m.statusCodes[dest] {
			dm.Responses += n
		}

		durations := m.responseTimes[dest]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			dm.AvgResponse = average(sorted)
			dm.P50Response = percentile(sorted, 0.50)
			dm.P95Response = percentile(sorted, 0.95)
			dm.P99Response = percentile(sorted, 0.99)
		}

		snap.Destinations[dest] = dm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:       make(map[string]int64),
		selections:     make(map[string]int64),
		responseTimes:  make(map[string][]time.Duration),
		statusCodes:    make(map[string]map[int]int64),
		failures:       make(map[string]int64),
		droppedHeaders: make(map[string]int64),
		startTime:      time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
