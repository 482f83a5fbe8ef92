// =============================================================================
// CFDI Transform - Serve Command
// =============================================================================
//
// This file defines the 'serve' command, which exposes single-document
// transforms over HTTP.
//
// COMMAND USAGE:
//   cfdi-transform serve [--addr :8080]
//
// ENDPOINTS:
//   GET  /healthz
//   GET  /api/profiles
//   GET  /api/profiles/{profile}/template
//   GET  /api/profiles/{profile}/schema
//   POST /api/transform/{profile}
//
// The server stops on SIGINT or SIGTERM and waits up to
// server.shutdown_timeout for in-flight requests.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/web"
)

// serveAddr overrides server.addr when set.
var serveAddr string

// serveCmd represents the 'serve' command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP transform server",
	Long: `Start an HTTP server that transforms one posted CFDI document per request.

The request body is the XML document. Query parameters select the output
format (csv, xlsx, json, yaml, xml), the schema variants, and the
empty_char and safe_numerics settings. Errors are returned as JSON with
a machine-readable code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(
		&serveAddr,
		"addr",
		"",
		"Listen address (overrides server.addr)",
	)
}

// runServe starts the server and blocks until it is shut down.
func runServe() error {
	mainConfig, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		mainConfig.Server.Addr = serveAddr
	}

	registry, err := loadRegistry(mainConfig.ProfilesDir)
	if err != nil {
		return err
	}
	slog.Info("profiles loaded", "profiles", len(registry.Profiles()), "catalogs", len(registry.Catalogs()))

	server := web.NewServer(mainConfig, registry)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), mainConfig.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-done
	slog.Info("server stopped")
	return nil
}
