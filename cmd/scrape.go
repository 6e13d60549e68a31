package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape and write the listing artifact",
		Long: `Opens the listing page in headless Chrome, applies the search term and
status filter, walks up to --max-pages result pages and writes the retained
listings to --output. Flags override the scrape section of the config file.`,
		RunE: runScrapeCommand,
	}
	addRunFlags(cmd.Flags())
	cmd.Flags().Bool(flagFetchDetails, false, "fetch each listing's detail page for a description")
	cmd.Flags().Bool(flagClassify, false, "classify listings with the configured zero-shot endpoint")
	cmd.Flags().StringP(flagOutput, "o", "", "artifact path (.json, .csv or .xlsx)")
	cmd.Flags().String(flagFormat, "", "artifact format, overriding the output extension")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := appInstance.BuildRunner(ctx)
	if err != nil {
		return err
	}
	rep, err := runner.Run(ctx, appInstance.ScrapeParams())
	if err != nil {
		if rep.Partial {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d partial listings to %s\n", len(rep.Retained), rep.OutputPath)
		}
		return fmt.Errorf("scrape: %w", err)
	}
	appInstance.Logger().Info("scrape finished",
		zap.String("run_id", rep.RunID),
		zap.Int("retained", len(rep.Retained)),
		zap.String("output", rep.OutputPath),
		zap.Duration("duration", rep.Duration),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d listings to %s\n", len(rep.Retained), rep.OutputPath)
	return nil
}
