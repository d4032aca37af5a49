package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/aeris/internal/server"
	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic alert scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Serve the API without running scheduled cycles")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := initComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	apiServer := server.NewServer(c.accounts, c.aggregator, c.store, server.Options{
		Metrics:  c.metrics,
		Gatherer: c.registry,
	}, c.logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	schedDone := make(chan struct{})
	if noScheduler {
		close(schedDone)
	} else {
		sched := alerting.NewScheduler(c.aggregator, cfg.Alerts.Interval, cfg.Alerts.RunOnStart, nil, c.logger)
		go func() {
			defer close(schedDone)
			sched.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("api started", "listen", cfg.Server.Listen, "notifier", c.aggregator.NotifierName())
		fmt.Fprintf(os.Stderr, "Aeris listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		<-schedDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		c.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		<-schedDone
	}

	c.logger.Info("aeris stopped")
	return nil
}
