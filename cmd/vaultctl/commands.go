package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	coreconfig "github.com/m3rciful/swapbot/core/config"
	coredatabase "github.com/m3rciful/swapbot/core/database"
	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/internal/store"
	"github.com/m3rciful/swapbot/internal/vault"
)

const defaultNewPassphraseEnv = "VAULT_NEW_MASTER_PASSPHRASE"

// errUnreadable makes the process exit non-zero when records fail to open.
var errUnreadable = errors.New("vault has unreadable records")

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Inspect and migrate the swapbot key vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", envOr("SWAPBOT_CONFIG", "config.yaml"), "path to the bot config file")

	cmd.AddCommand(
		checkCmd(&configPath),
		rekeyCmd(&configPath),
	)
	return cmd
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every stored key opens under the current passphrase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := open(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := vault.NewSealed(cfg.Vault.SealPassphrase(), store.New(db))
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), v, cmd.OutOrStdout())
		},
	}
}

func rekeyCmd(configPath *string) *cobra.Command {
	var newEnv string

	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt every stored key under a new master passphrase",
		Long: `Re-encrypt every stored key under a new master passphrase.

The current passphrase comes from the bot configuration. The new one is read
from the environment variable named by --new-passphrase-env. Stop the bot
before running this command and update its passphrase afterwards.`,
		Example: `  VAULT_NEW_MASTER_PASSPHRASE=... vaultctl rekey --config config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			next := os.Getenv(newEnv)
			if len(next) < coreconfig.MinPassphraseLen {
				return fmt.Errorf("%s must hold at least %d bytes", newEnv, coreconfig.MinPassphraseLen)
			}

			cfg, db, err := open(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := store.New(db)
			from, err := vault.NewSealed(cfg.Vault.SealPassphrase(), repo)
			if err != nil {
				return err
			}
			to, err := vault.New([]byte(next), repo)
			if err != nil {
				return err
			}
			return runRekey(cmd.Context(), from, to, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&newEnv, "new-passphrase-env", defaultNewPassphraseEnv, "environment variable holding the new passphrase")
	return cmd
}

func runCheck(ctx context.Context, v *vault.Vault, out io.Writer) error {
	report, err := v.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "records: %d\nunreadable: %d\n", report.Total, len(report.Unreadable))
	for _, addr := range report.Unreadable {
		fmt.Fprintf(out, "  %s\n", addr)
	}
	if len(report.Unreadable) > 0 {
		return errUnreadable
	}
	return nil
}

func runRekey(ctx context.Context, from, to *vault.Vault, out io.Writer) error {
	report, err := from.Reencrypt(ctx, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated: %d\n", report.Migrated)
	if len(report.Unreadable) > 0 {
		fmt.Fprintf(out, "unreadable (left as is): %s\n", strings.Join(report.Unreadable, ", "))
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("failed to re-seal %d records: %s", len(report.Failed), strings.Join(report.Failed, ", "))
	}
	if len(report.Unreadable) > 0 {
		return errUnreadable
	}
	return nil
}

// open loads the bot config and connects without running migrations.
func open(path string) (*coreconfig.Config, *sqlx.DB, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
