package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/sitemark/internal/config"
	"github.com/nao1215/sitemark/internal/database"
	"github.com/nao1215/sitemark/internal/model"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed when --limit is not set.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "List recorded crawl runs",
		Long: `History lists the crawl runs recorded in the local database, newest first.

Examples:
  # Show the last 20 runs
  sitemark history

  # Show every run of one site as JSON
  sitemark history -n 0 --json docs.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output runs as a JSON array")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	var target string
	if len(args) > 0 {
		target, err = config.NormalizeTarget(args[0])
		if err != nil {
			return err
		}
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), target, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if runs == nil {
			runs = []model.RunSummary{}
		}
		return encoder.Encode(runs)
	}
	return writeHistory(cmd.OutOrStdout(), runs)
}

// writeHistory prints runs as a Markdown table.
func writeHistory(w io.Writer, runs []model.RunSummary) error {
	md := markdown.NewMarkdown(w)
	if len(runs) == 0 {
		return md.PlainText("No crawl runs recorded.").Build()
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Local().Format(time.DateTime),
			run.Target,
			string(run.Mode),
			strconv.FormatInt(run.Pages, 10),
			strconv.FormatInt(run.Skipped, 10),
			strconv.FormatInt(run.Hits, 10),
			run.Elapsed.Round(time.Millisecond).String(),
		})
	}

	return md.Table(markdown.TableSet{
		Header: []string{"Started", "Target", "Mode", "Pages", "Skipped", "Cache Hits", "Elapsed"},
		Rows:   rows,
	}).Build()
}
