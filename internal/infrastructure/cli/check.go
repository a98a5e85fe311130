package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/bridge"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/scoring"
	"github.com/spf13/cobra"
)

var (
	checkDirect bool
	checkJSON   bool
)

var riskStyles = map[credibility.RiskLevel]lipgloss.Style{
	credibility.RiskLow:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	credibility.RiskMedium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
	credibility.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
}

var checkCmd = &cobra.Command{
	Use:   "check <text>",
	Short: "Check the credibility of a piece of text",
	Long: `Check sends text to the running background, which scores it and raises
an alert for high-risk content. With --direct the scoring service is called
from this process and no alert is raised.`,
	Example: `  truthguard check "The moon landing was staged"
  truthguard check --direct --json "Vaccines contain microchips"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		var scorer lifecycle.Scorer
		if checkDirect {
			store, err := e.openSettings(ctx)
			if err != nil {
				return err
			}
			scorer = scoring.NewSettingsScorer(e.scoringClient(), store)
		} else {
			client, err := bridge.Dial(ctx, e.cfg.Bridge.URL())
			if err != nil {
				return MapError(err)
			}
			defer client.Close()
			scorer = client
		}

		result, err := scorer.Check(ctx, strings.Join(args, " "))
		if err != nil {
			return MapError(err)
		}
		if checkJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		return printResult(cmd.OutOrStdout(), result)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDirect, "direct", false, "Call the scoring service from this process instead of the background")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the raw result as JSON")
	RootCmd.AddCommand(checkCmd)
}

func printResult(w io.Writer, r credibility.CheckResult) error {
	level, ok := r.Risk()
	if !ok {
		return fmt.Errorf("unexpected %s result from scoring service", r.Variant())
	}
	style := riskStyles[level]

	fmt.Fprintf(w, "Score:       %s (%s)\n", style.Render(fmt.Sprintf("%d", *r.Score)), style.Render(level.Label()))
	fmt.Fprintf(w, "             %s\n", level.Description())
	if r.Category != "" {
		fmt.Fprintf(w, "Category:    %s\n", r.HumanCategory())
	}
	if r.Explanation != "" {
		fmt.Fprintf(w, "Explanation: %s\n", r.Explanation)
	}
	if r.Tip != "" {
		fmt.Fprintf(w, "Tip:         %s\n", r.Tip)
	}
	if len(r.Flags) > 0 {
		fmt.Fprintf(w, "Flags:       %s\n", strings.Join(r.Flags, ", "))
	}
	return nil
}
