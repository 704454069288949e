// Package httpserver builds the process's HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server tuned for report submissions. ReadTimeout stays
// unset because report uploads stream arbitrarily large CSV bodies and
// a run executes within the request; ReadHeaderTimeout still bounds
// slow-header clients.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
