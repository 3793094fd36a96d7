package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	apiservices "github.com/ps-vitor/xhs-relay/backend/internal/api/services"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword> <numPosts> <downloadPath>",
	Short: "Search posts by keyword and download them to downloadPath.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("numPosts must be an integer, got %q", args[1])
		}

		req := models.SearchRequest{Keyword: args[0], NumPosts: &n, DownloadPath: args[2]}
		if err := req.Validate(); err != nil {
			return err
		}

		return run(cmd, domain.JobSearch,
			func(ctx context.Context, s domain.Scraper) (*domain.ScrapeResult, error) {
				return s.Search(ctx, req.Job())
			},
			func(ctx context.Context, c *apiservices.RelayClient) (*models.ScrapeResponse, string, error) {
				return c.Search(ctx, req)
			},
		)
	},
}
