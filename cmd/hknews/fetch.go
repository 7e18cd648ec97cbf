package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/logger"
)

var (
	fetchJSON   bool
	fetchSearch string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Refresh every feed once and print the result",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print the board as JSON")
	fetchCmd.Flags().StringVarP(&fetchSearch, "search", "q", "", "Only show cards containing this text")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Refresh(ctx)
	if err != nil {
		logger.Warn("refresh finished with errors", "error", err)
	}
	for _, r := range summary.Results {
		if r.Diagnostic != "" {
			logger.Info("feed diagnostic", "run_id", summary.RunID, "feed", r.Name(), "outcome", r.Outcome, "diagnostic", r.Diagnostic)
		}
	}

	snap := a.Board.Snapshot().Search(fetchSearch)
	out := cmd.OutOrStdout()
	if fetchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	_, err = fmt.Fprint(out, display.FormatText(snap))
	return err
}
