package agent

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const listenRetryDelay = 5 * time.Second

// Run starts the worker, the delivery listener, the refresh schedule and the
// HTTP server, and blocks until ctx is done. It then shuts everything down
// within the configured timeout.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.cfg.Port)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.worker.Start(ctx); err != nil {
		ln.Close()
		return err
	}
	if err := a.enrollment.Start(a.cfg.RefreshSchedule); err != nil {
		ln.Close()
		return err
	}

	listenCtx, stopListening := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.listen(listenCtx)
	}()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("push agent listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	a.logger.Info("shutting down push agent")

	timeout := time.Duration(a.cfg.ServerShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	stopListening()
	wg.Wait()

	a.enrollment.Stop(shutdownCtx)
	if err := a.worker.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("worker did not drain in time", slog.String("error", err.Error()))
	}

	a.host.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	if err := a.Close(); err != nil {
		a.logger.Warn("closing clients failed", slog.String("error", err.Error()))
	}

	a.logger.Info("push agent exited")
	return runErr
}

// listen initializes the gateway and routes inbound messages until ctx is
// done, retrying after provider failures.
func (a *Agent) listen(ctx context.Context) {
	for ctx.Err() == nil {
		client, err := a.gateway.Initialize(ctx, a.cfg.Push)
		if err == nil {
			err = a.router.Run(ctx, client)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Error("push listener stopped, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", listenRetryDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

// Close releases the provider client and the registry clients.
func (a *Agent) Close() error {
	var errs []error
	if err := a.gateway.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.firebase != nil {
		if err := a.firebase.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
