// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/metrics"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var saveCSV bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one harvest session",
		Long: `Runs one crawl session from the configured start URL until the last page,
the end of the pagination, or the consecutive-error limit. New records are
delivered to the collector; records that cannot be delivered are written to
the fallback directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, saveCSV)
		},
	}
	cmd.Flags().BoolVar(&saveCSV, "save-csv", false, "also write every harvested record to the fallback CSV file")
	return cmd
}

func runCrawl(cmd *cobra.Command, saveCSV bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := appInstance.NewRunner(saveCSV)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	stats, err := runner.Run(ctx)
	metrics.ObserveSession(string(stats.StopReason))
	if err != nil {
		logger.Error("crawl failed", zap.String("stop_reason", string(stats.StopReason)), zap.Error(err))
		return fmt.Errorf("run crawl: %w", err)
	}
	logger.Info("crawl command finished", zap.Int("publications", stats.TotalPublications))
	return nil
}
