package cli

import (
	"fmt"

	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the configured scoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		store, err := e.openSettings(cmd.Context())
		if err != nil {
			return err
		}
		s, err := settings.Get(cmd.Context(), store)
		if err != nil {
			return MapError(fmt.Errorf("load settings: %w", err))
		}
		if err := e.scoringClient().Health(cmd.Context(), s.ServiceURL); err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scoring service at %s is healthy\n", s.ServiceURL)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(healthCmd)
}
