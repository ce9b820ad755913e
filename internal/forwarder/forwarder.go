package forwarder

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/hostproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/hostproxy/internal/metrics"
	"github.com/angeloszaimis/hostproxy/internal/resolver"
	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type Options struct {
	Resolver resolver.Resolver
	// Client is shared by every request. Defaults to NewClient(30s).
	Client *http.Client
	// Scheme used to reach destinations. Defaults to http.
	Scheme    string
	Breakers  *circuitbreaker.Registry
	Collector *metrics.Collector
	Logger    *slog.Logger
}

type Forwarder struct {
	resolver  resolver.Resolver
	client    *http.Client
	scheme    string
	breakers  *circuitbreaker.Registry
	collector *metrics.Collector
	logger    *slog.Logger
}

func New(opts Options) *Forwarder {
	if opts.Client == nil {
		opts.Client = NewClient(30 * time.Second)
	}
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Forwarder{
		resolver:  opts.Resolver,
		client:    opts.Client,
		scheme:    opts.Scheme,
		breakers:  opts.Breakers,
		collector: opts.Collector,
		logger:    opts.Logger,
	}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	host := r.Host
	clientIP := extractClientIP(r)

	route, err := f.resolver.Resolve(r.Context(), host, clientIP)
	f.collector.Emit(metrics.MetricEvent{
		Type: metrics.EventRequestReceived,
		Host: route.Host,
	})
	if err != nil {
		if errors.Is(err, routing.ErrNoRoute) {
			f.fail(w, r, http.StatusServiceUnavailable, metrics.ReasonNoRoute, "no route for host", err)
			return
		}
		f.fail(w, r, http.StatusInternalServerError, metrics.ReasonConfigError, "failed to load routing config", err)
		return
	}

	f.collector.Emit(metrics.MetricEvent{
		Type:        metrics.EventRouteResolved,
		Host:        host,
		Backend:     route.Backend,
		Destination: route.Destination,
	})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.fail(w, r, http.StatusBadRequest, metrics.ReasonBadRequest, "failed to read request body", err)
		return
	}

	target := f.scheme + "://" + route.Destination + r.URL.RequestURI()
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		f.fail(w, r, http.StatusInternalServerError, metrics.ReasonBadRequest, "invalid HTTP method", err)
		return
	}
	outReq.Host = r.Host
	f.copyHeaders(outReq.Header, r.Header, metrics.DirectionRequest, host)

	if !f.breakers.Allow(route.Destination) {
		f.fail(w, r, http.StatusBadGateway, metrics.ReasonCircuitOpen, "upstream circuit open", nil,
			slog.String("destination", route.Destination))
		return
	}

	resp, err := f.client.Do(outReq)
	f.breakers.Record(route.Destination, err)
	if err != nil {
		f.fail(w, r, http.StatusBadGateway, metrics.ReasonUpstreamError, "Bad Gateway: "+err.Error(), err,
			slog.String("destination", route.Destination))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 100 || resp.StatusCode > 999 {
		f.fail(w, r, http.StatusInternalServerError, metrics.ReasonInvalidStatus, "invalid response status", nil,
			slog.String("destination", route.Destination),
			slog.Int("upstream_status", resp.StatusCode))
		return
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		f.fail(w, r, http.StatusInternalServerError, metrics.ReasonBodyUnreadable, "failed to read response body", err,
			slog.String("destination", route.Destination))
		return
	}

	f.copyHeaders(w.Header(), resp.Header, metrics.DirectionResponse, host)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		f.logger.Debug("Client went away", slog.String("error", err.Error()))
	}

	duration := time.Since(start)
	f.collector.Emit(metrics.MetricEvent{
		Type:        metrics.EventResponseCompleted,
		Host:        host,
		Backend:     route.Backend,
		Destination: route.Destination,
		Duration:    duration,
		StatusCode:  resp.StatusCode,
	})

	f.logger.Info("Forwarded request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("host", host),
		slog.String("path", r.URL.Path),
		slog.String("backend", route.Backend),
		slog.String("destination", route.Destination),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration))
}

func (f *Forwarder) fail(w http.ResponseWriter, r *http.Request, status int, reason, msg string, err error, attrs ...slog.Attr) {
	f.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventRequestFailed,
		Host:       r.Host,
		StatusCode: status,
		Reason:     reason,
	})

	attrs = append(attrs,
		slog.String("method", r.Method),
		slog.String("host", r.Host),
		slog.String("path", r.URL.Path),
		slog.Int("status", status))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	level := slog.LevelError
	if reason == metrics.ReasonNoRoute {
		level = slog.LevelWarn
	}
	f.logger.LogAttrs(r.Context(), level, msg, attrs...)

	http.Error(w, msg, status)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
