package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/core/auth"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/core/db"
	"github.com/solatis/varextract/internal/logging"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage customer API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key; the key is printed once and not stored",
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a customer's API keys",
	RunE:  runAPIKeyList,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd, apikeyListCmd)

	apikeyCreateCmd.Flags().String("customer", "", "customer ID (required)")
	apikeyCreateCmd.Flags().String("name", "", "human-readable key name (required)")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (default: lowest configured ID)")
	_ = apikeyCreateCmd.MarkFlagRequired("customer")
	_ = apikeyCreateCmd.MarkFlagRequired("name")

	apikeyListCmd.Flags().String("customer", "", "customer ID (required)")
	_ = apikeyListCmd.MarkFlagRequired("customer")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, _ := cmd.Flags().GetString("secret-id")
	secretID, err = pickSecret(secrets, secretID)
	if err != nil {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secrets[secretID])
	if err != nil {
		return err
	}

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	customer, _ := cmd.Flags().GetString("customer")
	name, _ := cmd.Flags().GetString("name")
	id, err := db.NewAPIKeyStore(queries).Insert(cmd.Context(), customer, name, secretID, hash)
	if err != nil {
		return err
	}
	logger.Info("api key created",
		zap.String("api_key_id", id),
		zap.String("customer_id", customer),
		zap.String("secret_id", secretID),
	)
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

// pickSecret returns want if configured, or the lowest configured secret ID.
func pickSecret(secrets map[string][]byte, want string) (string, error) {
	if len(secrets) == 0 {
		return "", fmt.Errorf("no HMAC secrets configured (set %s_HMAC_SECRET)", config.EnvPrefix)
	}
	if want != "" {
		if _, ok := secrets[want]; !ok {
			return "", fmt.Errorf("secret_id %s not configured", want)
		}
		return want, nil
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0], nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	err = db.NewAPIKeyStore(queries).Revoke(cmd.Context(), args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("api key %s not found or already revoked", args[0])
	}
	return err
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	customer, _ := cmd.Flags().GetString("customer")

	database, queries, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	keys, err := db.NewAPIKeyStore(queries).List(cmd.Context(), customer)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY ID\tNAME\tCREATED AT\tLAST USED\tREVOKED")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name,
			k.CreatedAt.UTC().Format(time.RFC3339), nullTime(k.LastUsedAt), nullTime(k.RevokedAt))
	}
	return w.Flush()
}

func nullTime(t sql.NullTime) string {
	if !t.Valid {
		return "-"
	}
	return t.Time.UTC().Format(time.RFC3339)
}
