// Package forwarder implements the proxy's request handler. It resolves
// the inbound Host header to a destination, replays the request there on a
// shared client and relays the buffered response.
package forwarder
