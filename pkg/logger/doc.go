// Package logger builds the structured logger shared by the proxy. It wraps
// log/slog and picks a text or JSON handler from the configured format and
// environment.
package logger
