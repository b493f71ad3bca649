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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/prowler/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the lookup state, history and boundary on a loopback port",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "prowler version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(api.Deps{
		Orchestrator: a.orch,
		Metrics:      a.metrics.Handler(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		// Event streams end when the signal context is cancelled.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "prowler listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: a.orch,
		Version:      version,
	})
	slog.Info("MCP server started (stdio transport)")

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
