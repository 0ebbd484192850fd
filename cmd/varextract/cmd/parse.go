package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/varextract/internal/logging"
	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse PATH...",
	Short: "Parse namespace paths and print the source rules they compile to",
	Example: `  varextract parse '*.created' 'OPS|SRE.status:Deployed.DateTime'
  varextract parse --check 'customfield_10010.value'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().Bool("check", false, "only validate syntax")
}

type parseOutput struct {
	Path      string            `json:"path"`
	Valid     bool              `json:"valid"`
	Error     string            `json:"error,omitempty"`
	ValueKind types.ValueKind   `json:"value_kind,omitempty"`
	Rule      *types.SourceRule `json:"rule,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	check, _ := cmd.Flags().GetBool("check")
	parsed, errs := namespace.ParseAll(args)
	compiler := namespace.NewCompiler(logger)

	out := make([]parseOutput, 0, len(args))
	next := 0
	for i, path := range args {
		if err, bad := errs[i]; bad {
			out = append(out, parseOutput{Path: path, Error: err.Error()})
			continue
		}
		p := parsed[next]
		next++
		entry := parseOutput{Path: path, Valid: true, ValueKind: p.ValueKind}
		if !check {
			rule := compiler.TranslateToSourceRule(p, next)
			entry.Rule = &rule
		}
		out = append(out, entry)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d paths invalid", len(errs), len(args))
	}
	return nil
}
