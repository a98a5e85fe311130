package cli

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the extension settings",
	Long: `Settings are stored in ~/.truthguard/settings.yaml by default. A running
background watches the file, so changes apply to the next check.`,
}

var settingsJSON bool

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current settings with defaults applied",
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

		out := cmd.OutOrStdout()
		if settingsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		fmt.Fprintf(out, "%s: %s\n", settings.KeyServiceURL, s.ServiceURL)
		fmt.Fprintf(out, "%s: %t\n", settings.KeyAutoCheck, s.AutoCheck)
		fmt.Fprintf(out, "%s: %t\n", settings.KeyNotificationsEnabled, s.NotificationsEnabled)
		return nil
	},
}

var (
	setServiceURL    string
	setAutoCheck     bool
	setNotifications bool
)

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more settings",
	Example: `  truthguard settings set --service-url https://factcheck.example.com/api
  truthguard settings set --notifications=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var update settings.Partial
		flags := cmd.Flags()
		if flags.Changed("service-url") {
			update.ServiceURL = settings.String(setServiceURL)
		}
		if flags.Changed("auto-check") {
			update.AutoCheck = settings.Bool(setAutoCheck)
		}
		if flags.Changed("notifications") {
			update.NotificationsEnabled = settings.Bool(setNotifications)
		}
		if update.IsEmpty() {
			return NewCLIError("nothing to change", "Pass --service-url, --auto-check or --notifications", nil)
		}

		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.settingsStore().Save(cmd.Context(), update); err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %v\n", update.Keys())
		return nil
	},
}

func init() {
	settingsGetCmd.Flags().BoolVar(&settingsJSON, "json", false, "Print settings as JSON")
	settingsSetCmd.Flags().StringVar(&setServiceURL, "service-url", "", "Scoring service base URL")
	settingsSetCmd.Flags().BoolVar(&setAutoCheck, "auto-check", false, "Check selections automatically")
	settingsSetCmd.Flags().BoolVar(&setNotifications, "notifications", true, "Raise alerts for high-risk content")

	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	RootCmd.AddCommand(settingsCmd)
}
