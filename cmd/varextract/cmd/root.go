package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/catalog"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/core/db"
	"github.com/solatis/varextract/internal/logging"
	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/rules"
	"github.com/solatis/varextract/internal/types"
)

// Version is the CLI release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "varextract",
	Short: "Issue-tracker variable extraction engine",
	Long: `varextract turns issue records and their changelogs into named business
variables (DORA and flow metrics inputs) using prioritized, configurable
source rules.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLevel, logFormat)
}

// openStore opens the database and loads the named queries. Migrations must
// already be applied.
func openStore(ctx context.Context) (*sqlx.DB, *db.Queries, error) {
	if dbURL == "" {
		return nil, nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return nil, nil, err
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'varextract migrate' first", s.ID)
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}

// baseCollection is the configured mappings file, or the built-in defaults.
func baseCollection(cfg *config.Config, logger *zap.Logger) (*types.Collection, error) {
	if cfg.Mappings.File == "" {
		return catalog.DefaultCollection(), nil
	}
	return catalog.LoadFile(cfg.Mappings.File, namespace.NewCompiler(logger))
}

func engineOptions(cfg *config.Config, logger *zap.Logger, observer rules.Observer) []rules.Option {
	opts := []rules.Option{
		rules.WithLogger(logger),
		rules.WithMaxDepth(cfg.Extraction.MaxDepth),
		rules.WithFilterPolicy(rules.ParseFilterPolicy(cfg.Extraction.UnsupportedFilterPolicy)),
		rules.WithWorkers(cfg.Extraction.Workers),
	}
	if observer != nil {
		opts = append(opts, rules.WithObserver(observer))
	}
	return opts
}
