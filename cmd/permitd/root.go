package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/api"
	"github.com/permitdesk/permit-pipeline/internal/config"
	"github.com/permitdesk/permit-pipeline/internal/integrator"
	"github.com/permitdesk/permit-pipeline/internal/logging"
	"github.com/permitdesk/permit-pipeline/internal/pipeline"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permitd",
		Short: "Resilient permit-data acquisition service",
		Long: `permitd fetches, extracts, and normalizes building-permit information
from jurisdiction websites, application PDFs, and third-party permitting
APIs, degrading gracefully when any of those misbehave.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only)")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLookupCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "permitd: %v\n", err)
		os.Exit(1)
	}
}

// buildService assembles the pipeline and its collaborators from config.
func buildService(cfg config.Config, logger *zap.Logger) (*pipeline.Service, error) {
	opts := []pipeline.Option{
		pipeline.WithResolver(pipeline.NewStaticResolver(cfg.Jurisdictions)),
	}

	svc, err := pipeline.New(cfg.Pipeline(), nil, logger, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Integrator.SystemsFile != "" {
		systems, err := integrator.LoadSystems(cfg.Integrator.SystemsFile)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("load permitting systems: %w", err)
		}
		client := integrator.New(systems, svc.Executor(), nil, logger.Named("integrator"))
		pipeline.WithIntegrator(client)(svc)
	}
	return svc, nil
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           api.NewServer(svc, logger.Named("api")).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				logger.Info("http server started", zap.Int("port", cfg.Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <url>",
		Short: "Fetch and extract permit data for one jurisdiction URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			data, err := svc.FetchAndExtract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
}
