package resolver

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/hostproxy/internal/routing"
	"github.com/angeloszaimis/hostproxy/internal/strategy"
)

// PerRequest loads the routing file on every call. Nothing is shared
// between requests.
type PerRequest struct {
	path     string
	strategy strategy.Strategy
}

func NewPerRequest(path string, strat strategy.Strategy) *PerRequest {
	return &PerRequest{
		path:     path,
		strategy: strat,
	}
}

func (p *PerRequest) Resolve(ctx context.Context, host, clientKey string) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}

	cfg, err := routing.Load(p.path, host)
	if err != nil {
		return Route{}, err
	}

	return route(cfg, host, clientKey, p.strategy)
}

func (p *PerRequest) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := routing.LoadTable(p.path)
		writeRoutes(w, p.path, table, err)
	}
}
