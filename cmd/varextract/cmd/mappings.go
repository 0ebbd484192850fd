package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/catalog"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/core/db"
	"github.com/solatis/varextract/internal/logging"
	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/types"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Store a mappings document as a customer's new collection version",
	Long: `Loads a collection or overrides document (JSON or YAML, chosen by file
extension), validates it and stores it as the customer's newest collection.
The server picks it up on the customer's next request.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a mapping collection",
	Long: `Prints the customer's stored collection (latest or --id), or without
--customer the configured mappings file or the built-in defaults.`,
	RunE: runExport,
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List a customer's stored collection versions, newest first",
	RunE:  runVersions,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionsCmd)

	importCmd.Flags().String("customer", "", "customer ID (required)")
	importCmd.Flags().String("version", "", "override the document's version label")
	_ = importCmd.MarkFlagRequired("customer")

	exportCmd.Flags().String("customer", "", "customer ID (requires --db-url)")
	exportCmd.Flags().String("id", "", "collection ID (default latest)")
	exportCmd.Flags().String("format", "json", "output format (json, yaml)")

	versionsCmd.Flags().String("customer", "", "customer ID (required)")
	_ = versionsCmd.MarkFlagRequired("customer")
}

func runImport(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	customer, _ := cmd.Flags().GetString("customer")
	c, err := catalog.LoadFile(args[0], namespace.NewCompiler(logger))
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("version"); v != "" {
		if c, err = c.With(v); err != nil {
			return err
		}
	}

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	stored, err := db.NewCollectionStore(queries).Save(cmd.Context(), customer, c)
	if err != nil {
		return err
	}
	logger.Info("collection imported",
		zap.String("customer_id", customer),
		zap.String("collection_id", string(stored.ID())),
		zap.String("version", stored.Version()),
		zap.Int("variables", stored.Len()),
	)
	fmt.Fprintln(cmd.OutOrStdout(), stored.ID())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	format, err := catalog.ParseFormat(formatName)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	c, err := exportCollection(cmd, logger)
	if err != nil {
		return err
	}
	data, err := catalog.EncodeCollection(c, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	if err == nil && format == catalog.FormatJSON {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return err
}

func exportCollection(cmd *cobra.Command, logger *zap.Logger) (*types.Collection, error) {
	customer, _ := cmd.Flags().GetString("customer")
	if customer == "" {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return baseCollection(cfg, logger)
	}

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer database.Close()
	store := db.NewCollectionStore(queries)

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return store.Load(cmd.Context(), customer)
	}
	cid, err := types.ParseCollectionID(id)
	if err != nil {
		return nil, err
	}
	return store.LoadVersion(cmd.Context(), customer, cid)
}

func runVersions(cmd *cobra.Command, args []string) error {
	customer, _ := cmd.Flags().GetString("customer")

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.NewCollectionStore(queries).ListVersions(cmd.Context(), customer)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION ID\tVERSION\tCREATED AT")
	for _, v := range versions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Version, v.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
