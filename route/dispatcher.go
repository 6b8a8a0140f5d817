package route

import (
	"net/http"
	"strings"
	"time"

	"github.com/nsa-yoda/ReplyXL/logger"
	"go.uber.org/zap"
)

// Dispatcher serves every request through exactly one route of its table.
type Dispatcher struct {
	table   *Table
	log     *zap.Logger
	metrics *Metrics
}

type DispatcherOption func(*Dispatcher)

func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(table *Table, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{table: table, log: logger.Get()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rw := &responseWriter{ResponseWriter: w}

	route, params, ok := d.table.Match(req.URL.Path)
	name := route.Name
	if !ok {
		// Build guarantees a catch-all, so this is a bug.
		name = "unmatched"
		d.log.Error("no route matched", zap.String("path", req.URL.Path))
		http.NotFound(rw, req)
	} else {
		d.invoke(rw, req, route, params)
	}

	elapsed := time.Since(start)
	status := rw.statusCode()
	d.metrics.observe(name, status, elapsed)

	d.log.Info("request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("route", name),
		zap.Int("status", status),
		zap.Int64("bytes", rw.size),
		zap.Duration("elapsed", elapsed),
		zap.String("remote", req.RemoteAddr),
	)
}

func (d *Dispatcher) invoke(w *responseWriter, req *http.Request, route Route, params Params) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("capability panicked",
				zap.String("route", route.Name),
				zap.String("path", req.URL.Path),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			d.serverError(w)
		}
	}()

	if !route.Allows(req.Method) {
		w.Header().Set("Allow", allowHeader(route.Methods))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if err := route.Capability.Serve(w, req, params); err != nil {
		d.log.Error("capability failed",
			zap.String("route", route.Name),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		d.serverError(w)
	}
}

// serverError writes a generic 500 unless the capability already started a response.
func (d *Dispatcher) serverError(w *responseWriter) {
	if w.wroteHeader {
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func allowHeader(methods []string) string {
	allowed := make([]string, 0, len(methods)+1)
	for _, m := range methods {
		allowed = append(allowed, m)
		if m == http.MethodGet {
			allowed = append(allowed, http.MethodHead)
		}
	}
	return strings.Join(allowed, ", ")
}

// responseWriter records what the capability wrote.
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int64
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}

func (w *responseWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
