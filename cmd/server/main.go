// Command server runs the natural-language SQL HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/app"
	"github.com/jmanoj0905/natural-language-sql/internal/config"
	internaldb "github.com/jmanoj0905/natural-language-sql/internal/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writeDB, readDB, err := internaldb.OpenPair(cfg.AuditDBPath, 0)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer readDB.Close()  //nolint:errcheck
	defer writeDB.Close() //nolint:errcheck
	if err := internaldb.Migrate(ctx, writeDB, logger.With("component", "migrate")); err != nil {
		return fmt.Errorf("migrate audit store: %w", err)
	}

	application, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return err
	}
	application.Start()
	defer application.Close() //nolint:errcheck

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router(ctx, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a plan of slow statements; the per-statement
		// timeout still applies.
		WriteTimeout: cfg.QueryTimeout*4 + cfg.OllamaTimeout,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "version", version, "env", cfg.Env)
		logger.Info("try: curl -s http://" + curlHostForListenAddr(cfg.ListenAddr) + "/health")
		var serveErr error
		if cfg.TLSCertFile != "" {
			serveErr = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// curlHostForListenAddr turns a listen address into a host:port usable from
// the local machine.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8000"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
