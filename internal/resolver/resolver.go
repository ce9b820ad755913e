package resolver

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/hostproxy/internal/routing"
	"github.com/angeloszaimis/hostproxy/internal/strategy"
)

// Route is the outcome of a successful resolution.
type Route struct {
	Host        string
	Backend     string
	Destination string
}

type Resolver interface {
	// Resolve returns the route for host. Errors wrap routing.ErrNoRoute or
	// one of the routing config errors.
	Resolve(ctx context.Context, host, clientKey string) (Route, error)
	// Handler renders the routes currently in effect.
	Handler() http.HandlerFunc
}

func route(cfg *routing.Config, host, clientKey string, strat strategy.Strategy) (Route, error) {
	backend, err := cfg.Route()
	if err != nil {
		return Route{}, err
	}

	destination := cfg.Destination
	if strat != nil {
		if selected := strat.Select(backend, clientKey); selected != "" {
			destination = selected
		}
	}

	return Route{
		Host:        host,
		Backend:     backend.Name,
		Destination: destination,
	}, nil
}
