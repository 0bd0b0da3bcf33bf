// Package cmd defines and implements the CLI commands for the scrapper executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Revision is the build revision, set with -ldflags "-X github.com/JakeFAU/scrapper/cmd.Revision=...".
var Revision = "dev"

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrapper",
		Short: "A headless-browser web scraper with an HTTP API.",
		Long: `scrapper renders pages in headless Chrome and extracts readable articles,
lists of story links, or the raw page. Results are cached by request and can be
read back by id.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); env vars use the SCRAPPER_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
