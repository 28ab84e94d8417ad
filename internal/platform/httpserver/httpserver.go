// Package httpserver builds the http.Server the deletion API runs on.
package httpserver

import (
	"net/http"
	"time"
)

// Report generation is the slowest handler, so the write timeout stays
// generous while the read side is kept tight.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the server. Graceful shutdown is the caller's job.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
