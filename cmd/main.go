package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/angeloszaimis/hostproxy/config"
	"github.com/angeloszaimis/hostproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/hostproxy/internal/forwarder"
	"github.com/angeloszaimis/hostproxy/internal/httpserver"
	"github.com/angeloszaimis/hostproxy/internal/metrics"
	"github.com/angeloszaimis/hostproxy/internal/resolver"
	"github.com/angeloszaimis/hostproxy/internal/routing"
	"github.com/angeloszaimis/hostproxy/internal/strategy"
	"github.com/angeloszaimis/hostproxy/pkg/logger"
)

type flags struct {
	configFile  string
	routingFile string
}

func parseFlags(args []string) (flags, error) {
	var f flags

	app := kingpin.New("hostproxy", "Reverse proxy routing requests by Host header.")
	app.HelpFlag.Short('h')
	app.Flag("config.file", "Path to the application config file.").StringVar(&f.configFile)
	app.Flag("routing.file", "Path to the routing file. Overrides the config file and CONFIG_PATH.").StringVar(&f.routingFile)

	_, err := app.Parse(args)
	return f, err
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		slog.Error("failed to parse flags", slog.Any("err", err))
		os.Exit(1)
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}
	if f.routingFile != "" {
		cfg.Routing.File = f.routingFile
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Server.Environment,
		AddSource:   true,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Proxy stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	strat := createStrategy(log, cfg.Strategy.Type, cfg.Strategy.VirtualNodes)
	breakers := circuitbreaker.NewRegistry(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ResetTimeout)

	res, watch := newResolver(ctx, cfg, log, strat, collector, breakers)

	fwd := forwarder.New(forwarder.Options{
		Resolver:  res,
		Client:    forwarder.NewClient(cfg.Upstream.Timeout),
		Scheme:    cfg.Upstream.Scheme,
		Breakers:  breakers,
		Collector: collector,
		Logger:    log,
	})

	proxySrv, err := httpserver.New(cfg.Server.Address, fwd, httpserver.Timeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
		Idle:  cfg.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}

	adminMux, err := setupAdminRouter(collector, res, breakers, cfg.Strategy.Type)
	if err != nil {
		return err
	}

	adminSrv, err := httpserver.New(cfg.Admin.Address, adminMux, httpserver.Timeouts{})
	if err != nil {
		return err
	}

	log.Info("Starting proxy",
		slog.String("address", cfg.Server.Address),
		slog.String("admin", cfg.Admin.Address),
		slog.String("routing_file", cfg.Routing.File),
		slog.String("mode", cfg.Routing.Mode),
		slog.String("strategy", cfg.Strategy.Type))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return collector.Run(gctx) })
	if watch != nil {
		g.Go(func() error { return watch(gctx) })
	}
	g.Go(func() error { return proxySrv.Run(gctx) })
	g.Go(func() error { return adminSrv.Run(gctx) })

	return g.Wait()
}

// newResolver builds the resolver for the configured mode. The returned
// function, when not nil, keeps the resolver's route table current.
func newResolver(ctx context.Context, cfg *config.Config, log *slog.Logger, strat strategy.Strategy, collector *metrics.Collector, breakers *circuitbreaker.Registry) (resolver.Resolver, func(context.Context) error) {
	if cfg.Routing.Mode == config.ModePerRequest {
		return resolver.NewPerRequest(cfg.Routing.File, strat), nil
	}

	snap := resolver.NewSnapshot(resolver.Options{
		Path:      cfg.Routing.File,
		Strategy:  strat,
		Interval:  cfg.Routing.ReloadInterval,
		Logger:    log,
		Collector: collector,
		OnReload: func(t *routing.Table) {
			breakers.Retain(t.Destinations())
		},
	})

	// Requests fail with the load error until the file becomes loadable.
	_ = snap.Reload(ctx)

	return snap, snap.Run
}

func createStrategy(logger *slog.Logger, strategyType string, virtualNodes int) strategy.Strategy {
	switch strategyType {
	case strategy.First:
		return strategy.NewFirstStrategy()
	case strategy.RoundRobin:
		return strategy.NewRoundRobinStrategy()
	case strategy.Random:
		return strategy.NewRandomStrategy()
	case strategy.ConsistentHash:
		return strategy.NewConsistentHashStrategy(virtualNodes)
	default:
		logger.Warn("Unknown strategy, defaulting to first", slog.String("requested", strategyType))
		return strategy.NewFirstStrategy()
	}
}
