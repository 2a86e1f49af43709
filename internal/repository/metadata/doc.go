// Package metadata persists the single piece of state this tool keeps
// between runs: the remote image's Last-Modified header value recorded by
// the last successful install.
package metadata
