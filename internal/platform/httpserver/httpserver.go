package httpserver

import (
	"net/http"
	"time"
)

// New builds an *http.Server with sane timeouts. The verify path fans out to
// external condition checks, so the write timeout is generous relative to the
// read timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
