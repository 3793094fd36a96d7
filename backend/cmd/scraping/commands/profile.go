package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	apiservices "github.com/ps-vitor/xhs-relay/backend/internal/api/services"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

func init() {
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile <downloadPath> [profileUrl...]",
	Short: "Scrape the given profiles and download their posts to downloadPath.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.ProfileRequest{DownloadPath: args[0], ProfileURLs: args[1:]}
		if err := req.Validate(); err != nil {
			return err
		}

		return run(cmd, domain.JobProfile,
			func(ctx context.Context, s domain.Scraper) (*domain.ScrapeResult, error) {
				return s.Profile(ctx, req.Job())
			},
			func(ctx context.Context, c *apiservices.RelayClient) (*models.ScrapeResponse, string, error) {
				return c.Profile(ctx, req)
			},
		)
	},
}
