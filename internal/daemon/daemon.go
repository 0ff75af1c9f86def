// Package daemon assembles the vaultd process: cache, refresh worker, vault
// watcher, effort lifecycle, and the HTTP API server.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ksakata/vaultd/internal/config"
	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/server"
	"github.com/ksakata/vaultd/internal/vault"
	"github.com/ksakata/vaultd/internal/watcher"
)

// Daemon is the vaultd process.
type Daemon struct {
	env        *config.Env
	cache      *vault.Cache
	watcher    *watcher.Watcher
	httpServer *http.Server
}

func New(env *config.Env) (*Daemon, error) {
	cache, err := vault.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create vault cache: %w", err)
	}
	return &Daemon{
		env:   env,
		cache: cache,
	}, nil
}

// Start scans the vault, then brings up the worker, the watcher and the HTTP
// server. Returns once the server is listening.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cache.Initialize(d.env.VaultRoot, d.env.ExcludeSet()); err != nil {
		return fmt.Errorf("failed to initialize vault cache: %w", err)
	}

	d.cache.StartWorker()

	d.watcher = watcher.New(d.env.VaultRoot, d.env.ExcludeSet(), d.env.PollInterval, d.cache)
	d.watcher.Start()

	if !d.env.APIEnabled {
		slog.InfoContext(ctx, "api disabled, running watch-only", "vault", d.env.VaultRoot)
		return nil
	}

	toolCommands, err := config.LoadToolCommands(d.env.VaultRoot)
	if err != nil {
		return err
	}
	lifecycle := effort.NewLifecycle(d.env.VaultRoot, toolCommands, d.cache)

	srv := server.New(d.cache, lifecycle)
	d.httpServer = &http.Server{
		Addr:         d.env.HTTPAddr(),
		Handler:      h2c.NewHandler(srv.Handler(), &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.InfoContext(ctx, "vaultd listening", "addr", d.env.HTTPAddr(), "vault", d.env.VaultRoot)
	go func() {
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop shuts everything down in dependency order: server first so no new
// work arrives, then the watcher so nothing enqueues, then the worker so the
// queue drains, then the cache's index.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.httpServer != nil {
		if err := d.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.cache.StopWorker()
	if err := d.cache.Close(); err != nil {
		return fmt.Errorf("failed to close vault cache: %w", err)
	}
	slog.Info("vaultd stopped")
	return nil
}

// WaitForShutdown blocks until the context is cancelled, then stops the
// daemon with a fresh timeout.
func (d *Daemon) WaitForShutdown(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.Stop(shutdownCtx)
}
