package cli

import (
	"context"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/bridge"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/chrome"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/tui"
	"github.com/felixgeelhaar/truthguard/pkg/application/popup"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/scoring"
	"github.com/spf13/cobra"
)

var popupBridge bool

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "Open the TruthGuard popup in the terminal",
	Long: `The popup checks typed text, or the selection of the active Chrome tab
when chrome.debugger_url is configured. Checks go straight to the scoring
service unless --bridge routes them through the running background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()
		ctx := cmd.Context()

		var tabs browser.Tabs = noTabs{}
		if e.cfg.Chrome.Enabled && e.cfg.Chrome.DebuggerURL != "" {
			host, err := chrome.Connect(ctx, e.cfg.Chrome, chrome.WithLogger(e.logger.Named("chrome")))
			if err != nil {
				return MapError(err)
			}
			defer host.Close()
			tabs = host
		}

		var scorer lifecycle.Scorer
		if popupBridge {
			client, err := bridge.Dial(ctx, e.cfg.Bridge.URL())
			if err != nil {
				return MapError(err)
			}
			defer client.Close()
			scorer = client
		} else {
			store, err := e.openSettings(ctx)
			if err != nil {
				return err
			}
			scorer = scoring.NewSettingsScorer(e.scoringClient(), store)
		}

		opts := []popup.Option{popup.WithLogger(e.logger.Named("popup"))}
		if u := e.websiteURL(); u != "" {
			opts = append(opts, popup.WithWebsiteURL(u))
		}
		return MapError(tui.Run(ctx, tabs, scorer, opts...))
	},
}

func init() {
	popupCmd.Flags().BoolVar(&popupBridge, "bridge", false, "Route checks through the running background")
	RootCmd.AddCommand(popupCmd)
}

// noTabs stands in for a browser when none is attached. The popup then
// offers manual input only.
type noTabs struct{}

func (noTabs) Active(context.Context) (browser.Tab, error) {
	return browser.Tab{}, browser.ErrNoActiveTab
}

func (noTabs) ExecuteScript(context.Context, browser.TabID, browser.Script) (string, error) {
	return "", browser.ErrTabNotFound
}
