package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/varextract/internal/catalog"
	"github.com/solatis/varextract/internal/core/api"
	"github.com/solatis/varextract/internal/core/auth"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/core/db"
	"github.com/solatis/varextract/internal/core/server"
	"github.com/solatis/varextract/internal/logging"
	"github.com/solatis/varextract/internal/metrics"
	"github.com/solatis/varextract/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC extraction service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	serveCmd.Flags().Bool("insecure", false, "disable API key authentication (no database required)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	insecure, _ := cmd.Flags().GetBool("insecure")

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.New(registry)
	opts := engineOptions(cfg, logger, observer)

	base, err := baseCollection(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	engine, err := rules.NewEngine(base, opts...)
	if err != nil {
		return fmt.Errorf("failed to compile mappings: %w", err)
	}

	if cfg.Mappings.Watch {
		watcher, err := catalog.NewWatcher(cfg.Mappings.File, engine, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	var store api.CollectionSource
	var authenticator *auth.Authenticator
	if dbURL != "" {
		database, queries, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		store = db.NewCollectionStore(queries)

		if !insecure {
			secrets, err := config.HMACSecrets()
			if err != nil {
				return fmt.Errorf("failed to load HMAC secrets: %w", err)
			}
			if len(secrets) == 0 {
				return fmt.Errorf("no HMAC secrets configured (set %s_HMAC_SECRET environment variable)", config.EnvPrefix)
			}
			authenticator = auth.NewAuthenticator(secrets, queries, logger)
		}
	} else if !insecure {
		return fmt.Errorf("--db-url required for authentication (or pass --insecure)")
	}
	if insecure {
		logger.Warn("API key authentication disabled")
	}

	service, err := api.NewExtractionService(engine, store, cfg.Server, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting varextract",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("mappings_version", base.Version()),
		zap.Int("variables", base.Len()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Start(gctx) })

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.Server.MetricsAddr, registry, logger)
		g.Go(metricsServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		return grpcServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Server.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
}
