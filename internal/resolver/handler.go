package resolver

import (
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/hostproxy/internal/routing"
)

type routesView struct {
	Source   string                      `yaml:"source"`
	Frontend string                      `yaml:"frontend"`
	Rules    []routing.RoutingRule       `yaml:"rules"`
	Backends map[string]*routing.Backend `yaml:"backends"`
	Error    string                      `yaml:"error,omitempty"`
}

func writeRoutes(w http.ResponseWriter, source string, table *routing.Table, err error) {
	view := routesView{Source: source}
	status := http.StatusOK

	if err != nil {
		view.Error = err.Error()
		status = http.StatusInternalServerError
	} else {
		view.Frontend = table.FrontendBind
		view.Rules = table.Rules
		view.Backends = table.Backends
	}

	out, marshalErr := yaml.Marshal(view)
	if marshalErr != nil {
		http.Error(w, marshalErr.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(status)
	w.Write(out)
}
