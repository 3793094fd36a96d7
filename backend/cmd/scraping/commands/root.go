package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	remoteURL     string
	remoteTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "scraping",
	Short:         "scraping runs the xhs search and profile scrapers locally or through a relay.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "Send the job to a running relay at this URL instead of spawning the scraper locally.")
	rootCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 15*time.Minute, "HTTP timeout when using --remote.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
