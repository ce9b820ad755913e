package routing

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backend is a named pool of server addresses in declaration order.
type Backend struct {
	Name    string   `yaml:"name"`
	Servers []string `yaml:"servers"`
}

// RoutingRule associates exact Host header values with a backend name.
type RoutingRule struct {
	Backend string   `yaml:"backend"`
	Hosts   []string `yaml:"hosts"`
	Line    int      `yaml:"line"`
}

func (r *RoutingRule) matches(host string) bool {
	for _, h := range r.Hosts {
		if h == host {
			return true
		}
	}
	return false
}

// Config is the result of evaluating a routing file for one requested host.
// It must not be modified once returned.
type Config struct {
	FrontendBind string
	// MatchedHost is only meaningful when Matched is true.
	MatchedHost string
	Matched     bool
	// ActiveBackend names the backend selected by the matching rule.
	ActiveBackend string
	// Backends holds only the backend activated by the matching rule.
	Backends map[string]*Backend
	// Declared lists every backend name in the source, in order.
	Declared    []string
	Destination string
}

// Validate reports whether the configuration has a frontend and at least
// one backend. It does not check that a route was found.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FrontendBind,
			validation.Required.Error("frontend bind address is missing"),
		),
		validation.Field(&c.Declared,
			validation.Required.Error("no backend declared"),
		),
	)
}

// Route returns the backend that served the matched rule. It fails with
// ErrNoRoute when no destination was resolved.
func (c *Config) Route() (*Backend, error) {
	if c.Destination == "" {
		if !c.Matched {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("%w: host %q matched but its backend has no server", ErrNoRoute, c.MatchedHost)
	}

	b, ok := c.Backends[c.ActiveBackend]
	if !ok {
		return nil, fmt.Errorf("%w: backend %q was not materialized", ErrNoRoute, c.ActiveBackend)
	}

	return b, nil
}
