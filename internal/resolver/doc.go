// Package resolver maps a Host header to the upstream destination that
// should receive the request.
//
// Two resolvers are provided. PerRequest reads and parses the routing file
// for every request, so edits take effect immediately. Snapshot compiles
// the file into a routing.Table and swaps it in atomically whenever the
// file changes on disk or the reload interval elapses.
package resolver
