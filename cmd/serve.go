package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secaudit/headgrade/internal/api"
	"github.com/secaudit/headgrade/internal/eventlog"
	"github.com/secaudit/headgrade/internal/policy"
	"github.com/secaudit/headgrade/internal/probe"
	"github.com/secaudit/headgrade/internal/rules"
	"github.com/secaudit/headgrade/internal/scanner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the header grading service",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := loadSettings(cmd.Flags())
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

		logger, err := buildLogger(settings.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		log, err := eventlog.OpenSQLite(settings.Database)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer log.Close()

		// Single limiter table and scanner instance shared by reference
		// across all request handlers; torn down at shutdown.
		limiter := policy.NewRateLimiter()
		defer limiter.Close()

		s := scanner.New(
			rules.ConfigByName(settings.Mode),
			probe.New(settings.ProbeTimeout),
			log,
			limiter,
			logger,
		)

		server := api.NewServer(api.Config{
			Scans:     s,
			Logger:    logger,
			RateLimit: settings.RateLimit,
			RateBurst: settings.RateBurst,
		})

		httpServer := &http.Server{
			Addr:         settings.Addr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s headgrade listening on %s (db: %s, rules: %s)\n",
				colorInfo("→"), settings.Addr, settings.Database, settings.Mode)
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, shutting down...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			fmt.Printf("%s Server shutdown complete\n", colorSuccess("✓"))
		}

		return nil
	},
}

func buildLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func init() {
	serveCmd.Flags().String("addr", defaultAddr, "Address for the HTTP server")
	serveCmd.Flags().String("database", defaultDatabase, "Path to the event log database")
	serveCmd.Flags().String("mode", "strict", "Rule configuration: strict or lenient")
	serveCmd.Flags().Duration("probe-timeout", defaultProbeTimeout, "Timeout for outbound probes")
	serveCmd.Flags().Int("rate-limit", defaultRateLimit, "API requests per second per IP (0 disables)")
	serveCmd.Flags().Int("rate-burst", defaultRateBurst, "API rate limiter burst size")
	serveCmd.Flags().String("log-format", "json", "Log format: json or console")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
}
