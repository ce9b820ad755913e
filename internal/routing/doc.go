// Package routing parses HAProxy-style routing files into host-scoped routing
// configurations and compiled route tables.
//
// A routing file is line oriented:
//
//	frontend :80
//	use_backend api if { req.hdr(host) -i api.example.com }
//	backend api
//	    server s1 10.0.0.5:9000
//
// Parse and Load evaluate the file for a single requested host, exactly as a
// per-request lookup would. Compile evaluates it once for every host named in
// a use_backend rule so that lookups need no further I/O.
package routing
