package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sitemark.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemark",
		Short: "Crawl a website and convert its pages to Markdown",
		Long: `sitemark crawls a website and writes every visited page as Markdown.

Pages are taken from the sitemaps declared in robots.txt when the site has
any. Otherwise the crawler follows links from the site root, rendering pages
in a headless browser when the site relies on scripts.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
