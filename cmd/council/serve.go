package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-council/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the council API with hot-reload of config.yaml. Members, providers
and council settings are swapped between requests when the file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("trace", false, "export OpenTelemetry spans to stderr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, logger, err := newApp(cmd)
	if err != nil {
		return err
	}

	// Spans are discarded unless --trace is set.
	var traceOut io.Writer
	if v, _ := cmd.Flags().GetBool("trace"); v {
		traceOut = os.Stderr
	}
	shutdownTracer, err := telemetry.InitTracer("polyglot-council", traceOut, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start council: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping council")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return app.Shutdown(shutdownCtx)
}
