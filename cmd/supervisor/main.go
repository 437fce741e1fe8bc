// Command supervisor is the process entry point for mc-ondemand: it
// prepares the filesystem, spawns the Minecraft child process, and runs the
// proxy loop and HTTP control plane until the lifecycle decides to shut
// down, then evicts persisted state (§4.4).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/mc-ondemand/internal/config"
	"github.com/udisondev/mc-ondemand/internal/credentials"
	"github.com/udisondev/mc-ondemand/internal/httpapi"
	"github.com/udisondev/mc-ondemand/internal/mccommand"
	"github.com/udisondev/mc-ondemand/internal/mcquery"
	"github.com/udisondev/mc-ondemand/internal/mcrcon"
	"github.com/udisondev/mc-ondemand/internal/proxy"
	"github.com/udisondev/mc-ondemand/internal/supervisor"
)

const (
	workDir       = "."
	persistentDir = "/data"

	queryAddr   = "127.0.0.1:25566"
	commandAddr = "127.0.0.1:25567"
	// commandPassword is the fixed RCON password §6 names for the child's
	// command service.
	commandPassword = "M1n3cr@ft"

	httpAddr = "0.0.0.0:80"

	inboundCapacity   = 16
	httpShutdownGrace = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("LOG_LEVEL")),
	})))

	creds, err := credentials.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	cfg := config.Load()
	slog.Info("configuration loaded",
		"difficulty", cfg.Difficulty, "maxPlayers", cfg.MaxPlayers,
		"serverIdleTimeoutMinutes", cfg.ServerIdleTimeoutM)

	baseline, err := supervisor.Baseline(workDir)
	if err != nil {
		return fmt.Errorf("capturing filesystem baseline: %w", err)
	}

	if err := supervisor.ReplaySymlinks(workDir, persistentDir); err != nil {
		return fmt.Errorf("replaying symlinks: %w", err)
	}
	slog.Info("symlinks replayed", "persistentDir", persistentDir)

	if err := supervisor.EnsureEULA(workDir, cfg.EULA); err != nil {
		return fmt.Errorf("ensuring eula: %w", err)
	}

	if err := supervisor.WriteServerProperties(workDir, cfg); err != nil {
		return fmt.Errorf("writing server.properties: %w", err)
	}

	child, err := supervisor.Spawn(workDir)
	if err != nil {
		return fmt.Errorf("spawning child: %w", err)
	}
	slog.Info("child spawned", "workDir", workDir)

	idleTimeout := time.Duration(cfg.ServerIdleTimeoutM) * time.Minute

	poller, err := mcquery.New(queryAddr)
	if err != nil {
		return fmt.Errorf("constructing poller: %w", err)
	}
	defer poller.Close()

	cmdClient := mcrcon.New(commandAddr, commandPassword)
	inbound := make(chan mccommand.Request, inboundCapacity)

	proxySvc := proxy.New(cmdClient, poller, inbound, idleTimeout)

	api, err := httpapi.New(creds, inbound)
	if err != nil {
		return fmt.Errorf("constructing http api: %w", err)
	}
	httpSrv := &http.Server{Addr: httpAddr, Handler: api.Handler()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		slog.Info("proxy loop starting", "idleTimeout", idleTimeout)
		return proxySvc.Run(gctx)
	})

	g.Go(func() error {
		return serveHTTP(gctx, httpSrv)
	})

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("run loop exited with error", "err", runErr)
	}

	exitErr, timedOut := child.Wait(idleTimeout)
	if timedOut {
		slog.Warn("child did not exit within idle timeout")
	}

	if err := supervisor.WriteErrorLog(workDir, child.Stderr(), exitErr); err != nil {
		slog.Warn("writing error log failed", "err", err)
	}

	if err := supervisor.Evict(workDir, persistentDir, baseline); err != nil {
		slog.Warn("eviction failed", "err", err)
	}
	slog.Info("eviction complete", "persistentDir", persistentDir)

	return runErr
}

// serveHTTP runs httpSrv until ctx is cancelled, then shuts it down
// gracefully within httpShutdownGrace.
func serveHTTP(ctx context.Context, httpSrv *http.Server) error {
	slog.Info("http server starting", "addr", httpSrv.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func parseLogLevel(v string) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
