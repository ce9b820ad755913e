package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/hostproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/hostproxy/internal/metrics"
	"github.com/angeloszaimis/hostproxy/internal/resolver"
)

func setupAdminRouter(collector *metrics.Collector, res resolver.Resolver, breakers *circuitbreaker.Registry, strategy string) (*http.ServeMux, error) {
	exporter := metrics.NewExporter(collector, strategy)
	exporter.BreakerStates = breakers.States

	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		exporter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", collector.Handler(strategy))
	mux.HandleFunc("/routes", res.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux, nil
}
