package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter exposes collector snapshots as Prometheus metrics.
type Exporter struct {
	collector *Collector
	strategy  string
	// BreakerStates reports circuit breaker state by destination. Optional.
	BreakerStates func() map[string]string

	requestsTotal        *prometheus.Desc
	selectionsTotal      *prometheus.Desc
	responsesTotal       *prometheus.Desc
	responseLatency      *prometheus.Desc
	failuresTotal        *prometheus.Desc
	droppedHeadersTotal  *prometheus.Desc
	reloadsTotal         *prometheus.Desc
	routedHosts          *prometheus.Desc
	lastReloadTimestamp  *prometheus.Desc
	circuitBreakerStates *prometheus.Desc
}

func NewExporter(collector *Collector, strategy string) *Exporter {
	return &Exporter{
		collector: collector,
		strategy:  strategy,
		requestsTotal: prometheus.NewDesc(
			"hostproxy_requests_total",
			"Total inbound requests by routed host",
			[]string{"host"},
			nil,
		),
		selectionsTotal: prometheus.NewDesc(
			"hostproxy_upstream_selections_total",
			"Total times a destination was chosen for a request",
			[]string{"destination", "strategy"},
			nil,
		),
		responsesTotal: prometheus.NewDesc(
			"hostproxy_upstream_responses_total",
			"Total upstream responses relayed by status code",
			[]string{"destination", "code"},
			nil,
		),
		responseLatency: prometheus.NewDesc(
			"hostproxy_upstream_latency_seconds",
			"Upstream round trip latency over the recent sample window",
			[]string{"destination", "quantile"},
			nil,
		),
		failuresTotal: prometheus.NewDesc(
			"hostproxy_request_failures_total",
			"Total requests answered by the proxy itself, by reason",
			[]string{"reason"},
			nil,
		),
		droppedHeadersTotal: prometheus.NewDesc(
			"hostproxy_dropped_headers_total",
			"Total header values dropped because they were not valid on the wire",
			[]string{"direction"},
			nil,
		),
		reloadsTotal: prometheus.NewDesc(
			"hostproxy_route_table_reloads_total",
			"Total route table reload attempts by result",
			[]string{"result"},
			nil,
		),
		routedHosts: prometheus.NewDesc(
			"hostproxy_routed_hosts",
			"Number of hosts in the current route table",
			nil,
			nil,
		),
		lastReloadTimestamp: prometheus.NewDesc(
			"hostproxy_route_table_last_reload_timestamp_seconds",
			"Unix time of the last successful route table load",
			nil,
			nil,
		),
		circuitBreakerStates: prometheus.NewDesc(
			"hostproxy_circuit_breaker_state",
			"Circuit breaker state by destination (1 for the current state)",
			[]string{"destination", "state"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requestsTotal
	ch <- e.selectionsTotal
	ch <- e.responsesTotal
	ch <- e.responseLatency
	ch <- e.failuresTotal
	ch <- e.droppedHeadersTotal
	ch <- e.reloadsTotal
	ch <- e.routedHosts
	ch <- e.lastReloadTimestamp
	ch <- e.circuitBreakerStates
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot(e.strategy)

	for host, n := range snap.Hosts {
		ch <- prometheus.MustNewConstMetric(e.requestsTotal, prometheus.CounterValue, float64(n), host)
	}

	for dest, dm := range snap.Destinations {
		ch <- prometheus.MustNewConstMetric(e.selectionsTotal, prometheus.CounterValue, float64(dm.Selections), dest, e.strategy)

		for code, n := range dm.StatusCodes {
			ch <- prometheus.MustNewConstMetric(e.responsesTotal, prometheus.CounterValue, float64(n), dest, strconv.Itoa(code))
		}

		if dm.Responses > 0 {
			for quantile, d := range map[string]time.Duration{
				"0.5":  dm.P50Response,
				"0.95": dm.P95Response,
				"0.99": dm.P99Response,
			} {
				ch <- prometheus.MustNewConstMetric(e.responseLatency, prometheus.GaugeValue, d.Seconds(), dest, quantile)
			}
		}
	}

	for reason, n := range snap.Failures {
		ch <- prometheus.MustNewConstMetric(e.failuresTotal, prometheus.CounterValue, float64(n), reason)
	}

	for direction, n := range snap.DroppedHeaders {
		ch <- prometheus.MustNewConstMetric(e.droppedHeadersTotal, prometheus.CounterValue, float64(n), direction)
	}

	ch <- prometheus.MustNewConstMetric(e.reloadsTotal, prometheus.CounterValue, float64(snap.Reloads), "success")
	ch <- prometheus.MustNewConstMetric(e.reloadsTotal, prometheus.CounterValue, float64(snap.ReloadFailures), "failure")
	ch <- prometheus.MustNewConstMetric(e.routedHosts, prometheus.GaugeValue, float64(snap.RoutedHosts))

	if !snap.LastReload.IsZero() {
		ch <- prometheus.MustNewConstMetric(e.lastReloadTimestamp, prometheus.GaugeValue, float64(snap.LastReload.Unix()))
	}

	if e.BreakerStates != nil {
		for dest, state := range e.BreakerStates() {
			ch <- prometheus.MustNewConstMetric(e.circuitBreakerStates, prometheus.GaugeValue, 1, dest, state)
		}
	}
}
