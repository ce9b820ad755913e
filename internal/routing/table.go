package routing

import (
	"fmt"
	"io"
	"os"
	"slices"
)

// Table is a routing file compiled for every host named in its rules.
// Lookup on a Table gives the same Config as Parse on the source it was
// compiled from. A Table is immutable and safe for concurrent use.
type Table struct {
	FrontendBind string              `yaml:"frontend"`
	Rules        []RoutingRule       `yaml:"rules"`
	Backends     map[string]*Backend `yaml:"backends"`
	Declared     []string            `yaml:"-"`

	byHost map[string]*Config
	miss   *Config
}

// Compile scans src once and evaluates it for each routed host.
func Compile(src io.Reader) (*Table, error) {
	directives, err := scan(src)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Backends: make(map[string]*Backend),
		byHost:   make(map[string]*Config),
		miss:     evaluate(directives, ""),
	}

	var open *Backend
	for _, d := range directives {
		switch d.keyword {
		case keywordFrontend:
			if len(d.args) > 0 {
				t.FrontendBind = d.args[0]
			}
			open = nil
		case keywordBind:
			if len(d.args) > 0 {
				t.FrontendBind = d.args[0]
			}
		case keywordUseBackend:
			t.Rules = append(t.Rules, *d.rule)
		case keywordBackend:
			open = nil
			if len(d.args) == 0 {
				continue
			}
			open = &Backend{Name: d.args[0]}
			t.Backends[open.Name] = open
			t.Declared = append(t.Declared, open.Name)
		case keywordServer:
			if open != nil && len(d.args) >= 2 {
				open.Servers = append(open.Servers, d.args[1])
			}
		}
	}

	for _, rule := range t.Rules {
		for _, host := range rule.Hosts {
			if _, done := t.byHost[host]; done {
				continue
			}
			t.byHost[host] = evaluate(directives, host)
		}
	}

	return t, nil
}

// LoadTable reads and compiles the routing file at path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}
	defer f.Close()

	t, err := Compile(f)
	if err != nil {
		return nil, err
	}

	if err := t.miss.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return t, nil
}

// Lookup returns the host-scoped Config for host.
func (t *Table) Lookup(host string) *Config {
	if cfg, ok := t.byHost[host]; ok {
		return cfg
	}
	return t.miss
}

// Destinations returns every server address reachable through a rule,
// without duplicates.
func (t *Table) Destinations() []string {
	seen := make(map[string]struct{})
	var out []string

	for _, cfg := range t.byHost {
		for _, b := range cfg.Backends {
			for _, server := range b.Servers {
				if _, ok := seen[server]; ok {
					continue
				}
				seen[server] = struct{}{}
				out = append(out, server)
			}
		}
	}

	slices.Sort(out)
	return out
}

// Hosts returns the number of distinct routed hosts.
func (t *Table) Hosts() int {
	return len(t.byHost)
}
