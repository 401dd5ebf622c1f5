package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sho7650/social-bridge/internal/app"
	"github.com/sho7650/social-bridge/internal/core"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass over every enabled platform and content item",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.Orchestrator.RunAll(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary, time.Now())
			return nil
		})
	},
}

var (
	syncItemID       int64
	syncItemPlatform string
)

var syncItemCmd = &cobra.Command{
	Use:   "sync-item",
	Short: "Sync a single content item, optionally on one platform",
	Example: `  social-bridge sync-item --item 42
  social-bridge sync-item --item 42 --platform mastodon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Orchestrator.ManualSync(ctx, syncItemID, syncItemPlatform)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range sortedKeys(result.Counts) {
				line := fmt.Sprintf("%-10s %s interactions", id, humanize.Comma(int64(result.Counts[id])))
				if msg, ok := result.Errors[id]; ok {
					line += "  error: " + msg
				}
				fmt.Fprintln(out, line)
			}
			printSummary(out, result.Summary, time.Now())
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform states, the last pass and the lock holder",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			now := time.Now()

			fmt.Fprintln(out, "Platforms:")
			statuses := a.Registry.Statuses()
			for _, id := range sortedKeys(statuses) {
				st := statuses[id]
				fmt.Fprintf(out, "  %-10s %-12s %s\n", id, st.State, st.Message)
			}

			fmt.Fprintf(out, "Schedule: %s", a.Scheduler.Expression())
			if next, err := a.Scheduler.Next(now); err == nil {
				fmt.Fprintf(out, " (next %s)", humanize.Time(next))
			}
			fmt.Fprintln(out)

			holder, held, err := a.Orchestrator.LockHolder(ctx)
			if err != nil {
				return err
			}
			if held {
				fmt.Fprintf(out, "Lock: held by %s since %s\n", holder.Owner, humanize.RelTime(holder.AcquiredAt, now, "ago", "from now"))
			} else {
				fmt.Fprintln(out, "Lock: free")
			}

			summary, err := a.Orchestrator.LastRunSummary(ctx)
			if err != nil {
				return err
			}
			if summary == nil {
				fmt.Fprintln(out, "Last pass: never")
				return nil
			}
			printSummary(out, *summary, now)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, syncItemCmd, statusCmd)

	syncItemCmd.Flags().Int64Var(&syncItemID, "item", 0, "content item id (required)")
	syncItemCmd.Flags().StringVar(&syncItemPlatform, "platform", "", "limit the pass to one platform")
	_ = syncItemCmd.MarkFlagRequired("item")
}

func printSummary(out io.Writer, s core.SyncSummary, now time.Time) {
	fmt.Fprintf(out, "Last pass: %s (%s, %s, took %s)\n", s.RunID, s.Trigger, humanize.RelTime(s.CompletedAt, now, "ago", "from now"), s.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "  platforms %d, items %d, new %s, updated %s, errors %d\n",
		s.PlatformsProcessed, s.ItemsProcessed,
		humanize.Comma(int64(s.NewInteractions)), humanize.Comma(int64(s.UpdatedInteractions)),
		s.ErrorCount)
	for _, id := range sortedKeys(s.PerPlatform) {
		st := s.PerPlatform[id]
		if st.Skipped {
			fmt.Fprintf(out, "  %-10s skipped\n", id)
			continue
		}
		fmt.Fprintf(out, "  %-10s items %d, inserted %d, updated %d, unchanged %d, errors %d\n",
			id, st.ItemsProcessed, st.Inserted, st.Updated, st.Unchanged, st.Errors)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
