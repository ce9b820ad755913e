// Package httpserver runs an http.Handler on a validated listen address
// and shuts it down gracefully when its context ends.
package httpserver
