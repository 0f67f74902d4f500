// Command brandwatch monitors secondhand marketplaces for brand listings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/brandwatch/pkg/config"
)

var (
	envFile       string
	storeOverride string
	logLevel      string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "brandwatch",
	Short:         "Secondhand marketplace brand listing monitor",
	Long:          "brandwatch searches secondhand marketplaces for brand keywords, stores new listings and notifies a chat as soon as they appear.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Flags are applied through the environment so they pass the same validation.
		if cmd.Flags().Changed("store") {
			os.Setenv("STORE", storeOverride)
		}
		if cmd.Flags().Changed("log-level") {
			os.Setenv("LOG_LEVEL", logLevel)
		}
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
	rootCmd.PersistentFlags().StringVar(&storeOverride, "store", "", "Listing store: sqlite, postgres or memory (overrides STORE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
