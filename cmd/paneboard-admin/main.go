// Command paneboard-admin is the MCP sidecar of spec.md §6: a stdio MCP
// server exposing project, role, MCP-server-config, and session
// administration tools directly against internal/store, independent of any
// running paneboard TUI instance. Grounded on the teacher's cmd/agent-deck
// bootstrap shape (structured logging before anything else, explicit flags
// over a subcommand framework) and on the pack's mark3labs/mcp-go stdio
// servers (e.g. the Engram and stringwork MCP commands) for the tool/server
// wiring itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentpane/paneboard/internal/config"
	"github.com/agentpane/paneboard/internal/logging"
	"github.com/agentpane/paneboard/internal/metrics"
	"github.com/agentpane/paneboard/internal/store"
)

// serverInstructions tells MCP clients what this sidecar is for and when to
// reach for it, the way the teacher's tool descriptions front-load intent
// rather than leaving a client to guess from names alone.
const serverInstructions = `paneboard-admin manages paneboard projects, their roles and MCP server ` +
	`configs, and lets you inspect sessions, all directly against the shared ` +
	`database. Use it to provision a new project and its roles before a user ` +
	`ever opens the paneboard TUI, or to audit session state from automation. ` +
	`It works even when no paneboard TUI instance is currently running.`

func main() {
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. 127.0.0.1:9091)")
	flag.Parse()

	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "paneboard-admin: warning: logging setup failed: %v\n", err)
	} else {
		defer logging.Shutdown()
	}
	log := logging.ForComponent(logging.CompAdmin)

	dbPath, err := config.EnsureDatabaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "paneboard-admin: error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(dbPath, uuid.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "paneboard-admin: error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if *metricsAddr != "" {
		startMetricsServer(ctx, *metricsAddr, st, log)
	}

	mcpServer := server.NewMCPServer(
		"paneboard-admin",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)
	registerTools(mcpServer, st)

	log.Info("admin_sidecar_started")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("stdio_server_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupLogging mirrors cmd/paneboard's logging bootstrap (spec.md §9),
// using the admin component name the rest of the codebase leaves unused.
func setupLogging() error {
	logDir, err := config.LogDir()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		LogDir:                logDir,
		Level:                 "info",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            5,
		MaxAgeDays:            10,
		Compress:              true,
		RingBufferSize:        1 * 1024 * 1024,
		AggregateIntervalSecs: 30,
	})
	return nil
}

// startMetricsServer serves /metrics in the background and keeps
// ActiveSessionsGauge current by polling the store directly, so the gauge
// reflects reality even when no paneboard TUI process is pushing counters
// (spec.md §9's domain-stack note on the two-process metrics split).
func startMetricsServer(ctx context.Context, addr string, st *store.Store, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go refreshActiveSessionsGauge(ctx, st)
	log.Info("metrics_server_started", slog.String("addr", addr))
}

// refreshActiveSessionsGauge recomputes the active-session count once a
// tick, not per scrape, since a scrape may arrive faster than the
// underlying count can meaningfully change.
func refreshActiveSessionsGauge(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		if sessions, err := st.ListActiveSessions(); err == nil {
			metrics.ActiveSessionsGauge.Set(float64(len(sessions)))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
