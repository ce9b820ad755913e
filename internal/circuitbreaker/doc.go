// Package circuitbreaker guards upstream destinations that keep failing at
// the transport level.
//
// Each destination gets its own breaker:
//
//   - CLOSED: requests are forwarded
//   - OPEN: requests are answered with 502 without dialing
//   - HALF-OPEN: a single probe is forwarded after the reset timeout
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	if !registry.Allow("10.0.0.5:9000") {
//	    // reject
//	}
//	_, err := client.Do(req)
//	registry.Record("10.0.0.5:9000", err)
package circuitbreaker
