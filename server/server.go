package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/nsa-yoda/ReplyXL/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// Serve binds the configured port and serves until ctx is cancelled.
func (b *Bootstrap) Serve(ctx context.Context, processes int) error {
	if state := b.State(); state != TableSelected {
		return &StateError{Want: TableSelected, Got: state}
	}

	port := b.Settings().Port
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	return b.ServeListener(ctx, ln, processes)
}

// ServeListener runs processes accept loops over ln. They share one
// http.Server, so the dispatcher and its table are shared as well. On
// return ln is closed.
func (b *Bootstrap) ServeListener(ctx context.Context, ln net.Listener, processes int) error {
	b.mu.Lock()
	if b.state != TableSelected {
		got := b.state
		b.mu.Unlock()
		_ = ln.Close()
		return &StateError{Want: TableSelected, Got: got}
	}
	b.state = Serving
	settings := b.settings
	handler := b.handler()
	b.mu.Unlock()

	if processes < 1 {
		processes = 1
	}
	if settings.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, settings.MaxConnections)
	}
	shared := &onceCloseListener{Listener: ln}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
		IdleTimeout:  settings.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Get()),
	}

	var metricsSrv *http.Server
	var metricsLn net.Listener
	if settings.MetricsPort > 0 {
		var err error
		metricsLn, err = net.Listen("tcp", fmt.Sprintf(":%d", settings.MetricsPort))
		if err != nil {
			_ = shared.Close()
			return fmt.Errorf("listen on metrics port %d: %w", settings.MetricsPort, err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{Registry: b.registry}))
		metricsSrv = &http.Server{Handler: mux, ReadTimeout: settings.ReadTimeout}
	}

	g, gctx := errgroup.WithContext(ctx)

	logger.Info("Starting server",
		zap.String("addr", ln.Addr().String()),
		zap.Int("processes", processes),
		zap.Int("maxConnections", settings.MaxConnections))

	for i := 0; i < processes; i++ {
		worker := i
		g.Go(func() error {
			logger.Debug("Accept loop started", zap.Int("worker", worker))
			if err := srv.Serve(shared); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("accept loop %d: %w", worker, err)
			}
			return nil
		})
	}

	if metricsSrv != nil {
		logger.Info("Starting metrics server", zap.String("addr", metricsLn.Addr().String()))
		g.Go(func() error {
			if err := metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

// onceCloseListener lets several accept loops share a listener. Each
// http.Server.Serve call closes it on shutdown; only the first close counts.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (l *onceCloseListener) Close() error {
	l.once.Do(func() { l.closeErr = l.Listener.Close() })
	return l.closeErr
}
