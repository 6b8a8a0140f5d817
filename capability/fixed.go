// Package capability holds the request handlers that route tables bind to
// path patterns.
package capability

import (
	"io"
	"net/http"

	"github.com/nsa-yoda/ReplyXL/route"
)

// Status answers /statuscheck. It touches nothing but the response.
type Status struct{}

func (Status) Serve(w http.ResponseWriter, r *http.Request, _ route.Params) error {
	return writeAlive(w, r)
}

// HealthMonitor answers the load balancer health monitor on /f5.
type HealthMonitor struct{}

func (HealthMonitor) Serve(w http.ResponseWriter, r *http.Request, _ route.Params) error {
	return writeAlive(w, r)
}

// Deny refuses the request with 403.
type Deny struct{}

func (Deny) Serve(w http.ResponseWriter, _ *http.Request, _ route.Params) error {
	writeText(w, http.StatusForbidden)
	return nil
}

// Missing answers 404 for anything no other route claimed.
type Missing struct{}

func (Missing) Serve(w http.ResponseWriter, _ *http.Request, _ route.Params) error {
	writeNotFound(w)
	return nil
}

func writeAlive(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err := io.WriteString(w, "OK\n")
	return err
}

func writeNotFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound)
}

func writeText(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}
