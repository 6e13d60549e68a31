package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tenderwatch/internal/dispatch"
	"github.com/JakeFAU/tenderwatch/internal/metrics"
)

func newDispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Trigger a scrape on the remote CI workflow",
		RunE:  runDispatchCommand,
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func runDispatchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	client, err := appInstance.Dispatcher()
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("dispatch.owner, dispatch.repo and dispatch.workflow must be set")
	}
	scrape := appInstance.Config().Scrape
	err = client.Dispatch(cmd.Context(), dispatch.Params{
		SearchTerm:       scrape.SearchTerm,
		MaxPages:         scrape.MaxPages,
		MinPublishedDate: scrape.MinPublishedDate,
	})
	if err != nil {
		metrics.ObserveDispatch("failed")
		return fmt.Errorf("dispatch: %w", err)
	}
	metrics.ObserveDispatch("accepted")
	fmt.Fprintln(cmd.OutOrStdout(), "run dispatched")
	return nil
}
