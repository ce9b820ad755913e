// Package metrics collects proxy metrics through a channel-based event
// pipeline and exposes them as a JSON snapshot and as Prometheus metrics.
//
// Tracked per run:
//   - Inbound requests by routed host, with unmatched hosts in one bucket
//   - Destination selections and upstream status codes
//   - Upstream latency percentiles (P50, P95, P99) over the last 1000 samples
//   - Requests answered by the proxy itself, by failure reason
//   - Header values dropped while relaying, by direction
//   - Route table reloads and the number of routed hosts
//
// The collector runs in a dedicated goroutine. Emit never blocks the request
// path: when the buffer is full the event is dropped.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	go collector.Run(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:        metrics.EventResponseCompleted,
//		Destination: "10.0.0.5:9000",
//		Duration:    150 * time.Millisecond,
//		StatusCode:  200,
//	})
//
//	registry := prometheus.NewRegistry()
//	registry.MustRegister(metrics.NewExporter(collector, "first"))
package metrics
