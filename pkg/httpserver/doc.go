// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, start hooks and liveness/readiness probes.
//
// Run blocks until the context is cancelled, an interrupt/TERM signal
// arrives, or the listener fails; shutdown then proceeds within a
// configurable deadline. Construction goes through New or NewFromConfig
// with functional options.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server stopped", "error", err)
//	}
//
// Listen errors are wrapped with ErrStart and shutdown errors with
// ErrShutdown so callers can distinguish them with errors.Is.
package httpserver
