// Command swapbot serves the trading bot over Telegram.
package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/m3rciful/swapbot/core/buildinfo"
	corecmd "github.com/m3rciful/swapbot/core/cmd"
	"github.com/m3rciful/swapbot/internal/app"
)

func main() {
	err := rootCmd().Execute()
	memguard.Purge()
	if err != nil {
		fmt.Fprintln(os.Stderr, "swapbot:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "swapbot",
		Short:         "Telegram bot for swaps, recurring buys and limit orders",
		Version:       buildinfo.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        configPath,
				ConfigEnvVar:      "SWAPBOT_CONFIG",
				DefaultConfigPath: "config.yaml",
				Bootstrap:         app.Bootstrap,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the bot config file (default $SWAPBOT_CONFIG or config.yaml)")
	return cmd
}
