package forwarder

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/angeloszaimis/hostproxy/internal/metrics"
)

// Hop-by-hop headers apply to a single connection and are not relayed.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeaders copies src into dst value by value. Names or values that are
// not valid on the wire are dropped and reported.
func (f *Forwarder) copyHeaders(dst, src http.Header, direction, host string) {
	skip := make(map[string]bool, len(hopHeaders))
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src["Connection"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for name, values := range src {
		if skip[http.CanonicalHeaderKey(name)] {
			continue
		}

		if !httpguts.ValidHeaderFieldName(name) {
			f.dropHeader(name, direction, host)
			continue
		}

		for _, value := range values {
			if !httpguts.ValidHeaderFieldValue(value) {
				f.dropHeader(name, direction, host)
				continue
			}
			dst.Add(name, value)
		}
	}
}

func (f *Forwarder) dropHeader(name, direction, host string) {
	f.logger.Warn("Dropped invalid header",
		slog.String("header", name),
		slog.String("direction", direction),
		slog.String("host", host))

	f.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventHeaderDropped,
		Host:      host,
		Direction: direction,
	})
}
