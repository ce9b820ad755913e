package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventRouteResolved     EventType = "route_resolved"
	EventResponseCompleted EventType = "response_completed"
	EventRequestFailed     EventType = "request_failed"
	EventHeaderDropped     EventType = "header_dropped"
	EventTableReloaded     EventType = "table_reloaded"
)

// Failure reasons carried by EventRequestFailed.
const (
	ReasonNoRoute        = "no_route"
	ReasonConfigError    = "config_error"
	ReasonBadRequest     = "bad_request"
	ReasonCircuitOpen    = "circuit_open"
	ReasonUpstreamError  = "upstream_unreachable"
	ReasonInvalidStatus  = "invalid_status"
	ReasonBodyUnreadable = "body_unreadable"
)

// Header directions carried by EventHeaderDropped.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

type MetricEvent struct {
	Type        EventType
	Timestamp   time.Time
	Host        string
	Backend     string
	Destination string
	Duration    time.Duration
	StatusCode  int
	Reason      string
	Direction   string
	// Hosts is the routed host count of a reloaded table; zero with a
	// non-empty Reason means the reload failed.
	Hosts int
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the
// buffer is full. Emit is safe on a nil Collector.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// Run processes events until ctx is done, then drains the buffer.
func (c *Collector) Run(ctx context.Context) error {
	c.run(ctx)
	return nil
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Host)

	case EventRouteResolved:
		c.metrics.RecordSelection(event.Destination)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Destination, event.Duration, event.StatusCode)

	case EventRequestFailed:
		c.metrics.RecordFailure(event.Reason)

	case EventHeaderDropped:
		c.metrics.RecordDroppedHeader(event.Direction)

	case EventTableReloaded:
		c.metrics.RecordReload(event.Timestamp, event.Hosts, event.Reason == "")
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
