package routing

import (
	"fmt"
	"io"
	"os"
)

// Parse evaluates the routing source for requestedHost.
//
// Only the backend activated by the first use_backend rule naming
// requestedHost is materialized, and only the first server line of that
// backend's block becomes the Destination. Unknown directives are skipped.
func Parse(src io.Reader, requestedHost string) (*Config, error) {
	directives, err := scan(src)
	if err != nil {
		return nil, err
	}

	return evaluate(directives, requestedHost), nil
}

// Load opens the routing file at path, parses it for requestedHost and
// validates the result. A valid Config may still have no Destination.
func Load(path, requestedHost string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}
	defer f.Close()

	cfg, err := Parse(f, requestedHost)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return cfg, nil
}

func evaluate(directives []directive, requestedHost string) *Config {
	cfg := &Config{
		Backends: make(map[string]*Backend),
	}

	var (
		open  *Backend
		armed bool
	)

	for _, d := range directives {
		switch d.keyword {
		case keywordFrontend:
			if len(d.args) > 0 {
				cfg.FrontendBind = d.args[0]
			}
			open, armed = nil, false

		case keywordBind:
			if len(d.args) > 0 {
				cfg.FrontendBind = d.args[0]
			}

		case keywordUseBackend:
			if cfg.Matched || !d.rule.matches(requestedHost) {
				continue
			}
			cfg.ActiveBackend = d.rule.Backend
			cfg.Matched = true
			cfg.MatchedHost = requestedHost

		case keywordBackend:
			open, armed = nil, false
			if len(d.args) == 0 {
				continue
			}

			name := d.args[0]
			cfg.Declared = append(cfg.Declared, name)

			if cfg.Matched && name == cfg.ActiveBackend {
				open = &Backend{Name: name}
				cfg.Backends[name] = open
				armed = true
			}

		case keywordServer:
			if open == nil || len(d.args) < 2 {
				continue
			}

			addr := d.args[1]
			open.Servers = append(open.Servers, addr)

			if armed {
				cfg.Destination = addr
				armed = false
			}
		}
	}

	return cfg
}
