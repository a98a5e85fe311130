package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/webhook"
	"github.com/spf13/cobra"
)

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List webhook alerts that could not be delivered",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		out := cmd.OutOrStdout()
		if e.cfg.Notifications.DeadLetterPath == "" {
			fmt.Fprintln(out, "Dead letters are disabled.")
			return nil
		}
		entries, err := webhook.NewDeadLetterStore(e.cfg.Notifications.DeadLetterPath).ReadAll()
		if err != nil {
			return MapError(fmt.Errorf("read dead letters: %w", err))
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No dead letters.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tWEBHOOK\tNOTIFICATION\tATTEMPTS\tERROR")
		for _, dl := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				dl.Timestamp.Format("2006-01-02 15:04:05"), dl.WebhookName, dl.NotificationID, dl.Attempts, dl.Error)
		}
		return tw.Flush()
	},
}

func init() {
	RootCmd.AddCommand(deadLettersCmd)
}
