// Package httpserver keeps http.Server construction in one place so cmd/server
// stays small and timeouts are consistent.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with sane defaults for the verifier's workload.
// Write timeout is generous because report archives stream through uploads.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
