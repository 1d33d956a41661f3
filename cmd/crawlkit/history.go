package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nao1215/crawlkit/internal/config"
	"github.com/nao1215/crawlkit/internal/database"
	"github.com/spf13/cobra"
)

// historyTimeLayout is used for every timestamp the history command prints.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [crawl-id]",
		Short: "Show past crawls recorded in the crawl database",
		Long: `History lists the crawls recorded in the crawl database.

With a crawl id it shows the counters of that crawl, the number of pages
stored and every failed request.

Examples:
  # List all crawls, most recent first
  crawlkit history

  # Show one crawl
  crawlkit history 0b6f2f3e-5c1a-4f4e-9a43-3c0d9f3f6c1d`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", config.DefaultDBDir(),
		"Directory of the crawl database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		return listCrawls(ctx, db, cmd.OutOrStdout())
	}
	return showCrawl(ctx, db, args[0], cmd.OutOrStdout())
}

// listCrawls prints one line per crawl.
func listCrawls(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	records, err := db.ListCrawls(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No crawls recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CRAWL ID\tSTATE\tSTARTED\tFETCHED\tFAILED\tSEEDS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.CrawlID,
			r.State,
			formatTime(r.StartedAt),
			r.Stats["fetched"],
			r.Stats["failed"],
			strings.Join(r.Seeds, " "),
		)
	}
	return tw.Flush()
}

// showCrawl prints the details of one crawl.
func showCrawl(ctx context.Context, db *database.CrawlDB, crawlID string, out io.Writer) error {
	record, err := db.GetCrawl(ctx, crawlID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", database.ErrCrawlNotFound, crawlID)
	}

	pages, err := db.CountPages(ctx, crawlID)
	if err != nil {
		return err
	}
	failures, err := db.ListFailures(ctx, crawlID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Crawl:     %s\n", record.CrawlID)
	fmt.Fprintf(out, "State:     %s\n", record.State)
	fmt.Fprintf(out, "Started:   %s\n", formatTime(record.StartedAt))
	fmt.Fprintf(out, "Finished:  %s\n", formatTime(record.FinishedAt))
	fmt.Fprintf(out, "Pages:     %d\n", pages)
	for _, seed := range record.Seeds {
		fmt.Fprintf(out, "Seed:      %s\n", seed)
	}

	if len(record.Stats) > 0 {
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, key := range slices.Sorted(maps.Keys(record.Stats)) {
			fmt.Fprintf(tw, "  %s\t%d\n", key, record.Stats[key])
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(failures) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nFailures (%d):\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(out, "  * [%s] %s (generation %d): %s\n", f.Kind, f.URL, f.Generation, f.Message)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}
