package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sho7650/social-bridge/internal/app"
	"github.com/sho7650/social-bridge/internal/core"
)

var (
	queryItemID   int64
	queryPlatform string
	queryType     string
	nativeFile    string
)

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List stored interactions of a content item",
	Example: `  social-bridge interactions --item 42
  social-bridge interactions --item 42 --platform bluesky --type like`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			list, err := a.Merger.GetInteractions(ctx, queryItemID, queryPlatform, core.InteractionType(queryType))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, in := range list {
				fmt.Fprintf(out, "%-9s %-8s %-24s %s  %s\n",
					in.Platform, in.Type, in.Data.AuthorName, humanize.Time(in.OccurredAt), oneLine(in.Data.Content, 60))
			}
			fmt.Fprintf(out, "%s interactions\n", humanize.Comma(int64(len(list))))
			return nil
		})
	},
}

var mergedCmd = &cobra.Command{
	Use:   "merged",
	Short: "Print the merged comment list of a content item as JSON",
	Long: `Print the merged comment list of a content item as JSON. Native comments
are read from --native, a JSON array of {id, author, author_url, content, date}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var native []core.NativeComment
		if nativeFile != "" {
			data, err := os.ReadFile(nativeFile)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &native); err != nil {
				return fmt.Errorf("failed to parse native comments: %w", err)
			}
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			merged, err := a.Merger.GetMergedComments(ctx, queryItemID, native)
			if err != nil {
				return err
			}
			count, err := a.Merger.CommentCount(ctx, queryItemID, len(native))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Count    int                  `json:"count"`
				Comments []core.MergedComment `json:"comments"`
			}{count, merged})
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show how a post URL resolves on each platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			matched := false
			for _, p := range a.Registry.List() {
				ref, err := p.ResolvePostReference(args[0])
				if err != nil {
					continue
				}
				matched = true
				data, err := json.MarshalIndent(ref, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s:\n%s\n", p.ID(), data)
			}
			if !matched {
				return core.Errorf(core.KindInvalidURL, "", "resolve", "no platform recognises %q", args[0])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(interactionsCmd, mergedCmd, resolveCmd)

	for _, c := range []*cobra.Command{interactionsCmd, mergedCmd} {
		c.Flags().Int64Var(&queryItemID, "item", 0, "content item id (required)")
		_ = c.MarkFlagRequired("item")
	}
	interactionsCmd.Flags().StringVar(&queryPlatform, "platform", "", "platform id (default: every platform)")
	interactionsCmd.Flags().StringVar(&queryType, "type", "", "comment, like or share")
	mergedCmd.Flags().StringVar(&nativeFile, "native", "", "JSON file of native comments")
}

func oneLine(s string, limit int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' {
			r[i] = ' '
		}
	}
	if len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return string(r)
}
