package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API over the latest artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context())
		},
	}
	cmd.Flags().Int(flagPort, 0, "listen port")
	cmd.Flags().StringP(flagOutput, "o", "", "artifact the dashboard reads")
	return cmd
}
