package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to a small JSON API. Writes
// are bounded because no endpoint streams; settlement work is never done on
// a request goroutine.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
