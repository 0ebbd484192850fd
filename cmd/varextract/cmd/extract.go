package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/core/db"
	"github.com/solatis/varextract/internal/logging"
	"github.com/solatis/varextract/internal/rules"
	"github.com/solatis/varextract/internal/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract variables from records read from a file or stdin",
	Long: `Reads one {"record": ..., "history": [...]} object or a JSON array of them
and prints the extracted variables as JSON.

The collection is, in order of preference: the stored collection of
--customer, the --mappings file, the configured mappings file, the built-in
defaults.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("input", "i", "-", "input file (- for stdin)")
	extractCmd.Flags().String("variable", "", "extract a single variable with full result details")
	extractCmd.Flags().String("category", "", "restrict to a category (dora, flow, common)")
	extractCmd.Flags().String("mappings", "", "mappings file (collection or overrides, JSON or YAML)")
	extractCmd.Flags().String("customer", "", "use the customer's stored collection (requires --db-url)")
}

type variableOutput struct {
	Key    string       `json:"key,omitempty"`
	Result rules.Result `json:"result"`
}

type recordOutput struct {
	Key    string         `json:"key,omitempty"`
	Values map[string]any `json:"values"`
	Error  string         `json:"error,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if m, _ := cmd.Flags().GetString("mappings"); m != "" {
		cfg.Mappings.File = m
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	collection, err := extractionCollection(cmd, cfg, logger)
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine(collection, engineOptions(cfg, logger, nil)...)
	if err != nil {
		return fmt.Errorf("failed to compile mappings: %w", err)
	}

	inputPath, _ := cmd.Flags().GetString("input")
	inputs, err := readRecordInputs(cmd.InOrStdin(), inputPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if variable, _ := cmd.Flags().GetString("variable"); variable != "" {
		out := make([]variableOutput, 0, len(inputs))
		for _, in := range inputs {
			res, err := engine.ExtractVariable(variable, in.Record, in.History)
			if err != nil {
				return fmt.Errorf("record %s: %w", in.Record.Key(), err)
			}
			out = append(out, variableOutput{Key: in.Record.Key(), Result: res})
		}
		return enc.Encode(out)
	}

	category, _ := cmd.Flags().GetString("category")
	results, err := engine.ExtractRecords(cmd.Context(), inputs, types.Category(category))
	if err != nil {
		return err
	}
	out := make([]recordOutput, len(results))
	for i, r := range results {
		out[i] = recordOutput{Key: r.Key, Values: r.Values}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return enc.Encode(out)
}

func extractionCollection(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*types.Collection, error) {
	customer, _ := cmd.Flags().GetString("customer")
	if customer == "" {
		return baseCollection(cfg, logger)
	}

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer database.Close()

	c, err := db.NewCollectionStore(queries).Load(cmd.Context(), customer)
	if errors.Is(err, types.ErrCollectionNotFound) {
		logger.Warn("no stored collection for customer, using base mappings", zap.String("customer_id", customer))
		return baseCollection(cfg, logger)
	}
	return c, err
}

// readRecordInputs accepts a single object or an array of objects.
func readRecordInputs(stdin io.Reader, path string) ([]rules.RecordInput, error) {
	var data []byte
	var err error
	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	if trimmed[0] == '[' {
		var inputs []rules.RecordInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, fmt.Errorf("decoding input: %w", err)
		}
		return inputs, nil
	}
	var in rules.RecordInput
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	return []rules.RecordInput{in}, nil
}
