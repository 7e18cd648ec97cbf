package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/feed"
	"github.com/deusflow/hknews/internal/news"
)

var loadMorePages int

var loadMoreCmd = &cobra.Command{
	Use:   "load-more <local|world|finance>",
	Short: "Print further pages of a grid feed",
	Long:  "Shows the first page of the feed (from cache when fresh) and then appends up to --pages further pages.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadMore,
}

func init() {
	loadMoreCmd.Flags().IntVarP(&loadMorePages, "pages", "n", 1, "Number of further pages to fetch")
	rootCmd.AddCommand(loadMoreCmd)
}

func runLoadMore(cmd *cobra.Command, args []string) error {
	kind, ok := news.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown feed %q", args[0])
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// cursors live in memory, so the first page restores them
	first := a.Feeds.FetchFeed(ctx, kind)
	if first.Err != nil && first.Empty {
		return fmt.Errorf("%s: %s", first.Name(), first.Message)
	}

	for i := 0; i < loadMorePages; i++ {
		res := a.LoadMore(ctx, kind)
		if res.Err != nil && res.Outcome != feed.OutcomeEmpty {
			return res.Err
		}
		if res.Outcome == feed.OutcomeNoMore || res.Empty {
			break
		}
	}

	snap := a.Board.Snapshot()
	var only display.Snapshot
	switch kind {
	case news.KindLocal:
		only.Local = snap.Local
	case news.KindWorld:
		only.World = snap.World
	case news.KindFinance:
		only.Finance = snap.Finance
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), display.FormatText(only))
	return err
}
