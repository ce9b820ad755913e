package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/angeloszaimis/hostproxy/internal/metrics"
	"github.com/angeloszaimis/hostproxy/internal/routing"
	"github.com/angeloszaimis/hostproxy/internal/strategy"
)

const defaultDebounce = 100 * time.Millisecond

type Options struct {
	Path     string
	Strategy strategy.Strategy
	// Interval between unconditional reloads. Zero disables the ticker.
	Interval time.Duration
	// Debounce coalesces bursts of file events. Defaults to 100ms.
	Debounce  time.Duration
	Logger    *slog.Logger
	Collector *metrics.Collector
	// OnReload is called with every table that was swapped in.
	OnReload func(*routing.Table)
}

// Snapshot resolves against the last routing.Table compiled from disk.
// Readers never lock; a reload replaces the table pointer.
type Snapshot struct {
	opts  Options
	table atomic.Pointer[routing.Table]
	group singleflight.Group

	mutex   sync.RWMutex
	lastErr error
}

func NewSnapshot(opts Options) *Snapshot {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Snapshot{
		opts:    opts,
		lastErr: fmt.Errorf("%w: route table not loaded yet", routing.ErrConfigUnreadable),
	}
}

func (s *Snapshot) Resolve(ctx context.Context, host, clientKey string) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}

	table := s.table.Load()
	if table == nil {
		return Route{}, s.err()
	}

	return route(table.Lookup(host), host, clientKey, s.opts.Strategy)
}

// Reload compiles the routing file and swaps the result in. On failure the
// current table stays in place. Concurrent calls share one load.
func (s *Snapshot) Reload(ctx context.Context) error {
	_, err, _ := s.group.Do("reload", func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, s.reload()
	})
	return err
}

func (s *Snapshot) reload() error {
	start := time.Now()
	table, err := routing.LoadTable(s.opts.Path)
	if err != nil {
		s.mutex.Lock()
		if s.table.Load() == nil {
			s.lastErr = err
		}
		s.mutex.Unlock()

		s.opts.Logger.Error("Route table reload failed",
			slog.String("file", s.opts.Path),
			slog.String("error", err.Error()))
		s.opts.Collector.Emit(metrics.MetricEvent{
			Type:   metrics.EventTableReloaded,
			Reason: "load_failed",
		})
		return err
	}

	s.table.Store(table)
	s.mutex.Lock()
	s.lastErr = nil
	s.mutex.Unlock()

	s.opts.Logger.Info("Route table loaded",
		slog.String("file", s.opts.Path),
		slog.Int("hosts", table.Hosts()),
		slog.Duration("took", time.Since(start)))
	s.opts.Collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventTableReloaded,
		Timestamp: start,
		Hosts:     table.Hosts(),
	})

	if s.opts.OnReload != nil {
		s.opts.OnReload(table)
	}
	return nil
}

func (s *Snapshot) err() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastErr
}

// Table returns the current table, or nil before the first successful load.
func (s *Snapshot) Table() *routing.Table {
	return s.table.Load()
}

// Run watches the routing file's directory and reloads on changes and on
// every Interval until ctx is done. Watching the directory keeps working
// when editors replace the file instead of writing it in place.
func (s *Snapshot) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.opts.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.opts.Logger.Info("Watching routing file",
		slog.String("file", target),
		slog.Duration("interval", s.opts.Interval))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(s.opts.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.opts.Logger.Warn("File watcher error", slog.String("error", err.Error()))

		case <-pending:
			pending = nil
			_ = s.Reload(ctx)

		case <-tick:
			_ = s.Reload(ctx)
		}
	}
}

func (s *Snapshot) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := s.table.Load()
		if table == nil {
			writeRoutes(w, s.opts.Path, nil, s.err())
			return
		}
		writeRoutes(w, s.opts.Path, table, nil)
	}
}
