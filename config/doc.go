// Package config loads the proxy's application settings from an optional
// YAML file and environment variables. Listener addresses and timeouts,
// the routing file and its reload mode, the upstream scheme, the selection
// strategy, circuit breaking, metrics and logging are all configured here.
// The routing rules themselves live in the routing file.
package config
