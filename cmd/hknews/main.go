// Package main is the hknews command: the news relay server and one-shot
// fetches for the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deusflow/hknews/internal/app"
	"github.com/deusflow/hknews/internal/config"
	"github.com/deusflow/hknews/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "hknews",
	Short: "Hong Kong news aggregator",
	Long:  "hknews fetches Hong Kong, world, finance and regional headlines, filters them for freshness, source and language, and serves or prints the result.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Init()
	},
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads configuration and builds the application.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}
