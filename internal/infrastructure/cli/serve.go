package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/bridge"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/chrome"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/notify"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/sse"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/web"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/truthguard/pkg/application/background"
	"github.com/felixgeelhaar/truthguard/pkg/application/content"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
	"github.com/felixgeelhaar/truthguard/pkg/scoring"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background, the bridge and the companion page",
	Long: `Serve runs the background context until interrupted:
  - the bridge on bridge.addr, used by 'check' and 'popup --bridge'
  - the companion page on web.addr, when web.enabled is set
  - the Chrome host, when chrome.enabled is set, which injects the overlay
    into every http(s) page and handles the in-page menu and Alt+Shift+C

High-risk results raise alerts through the configured notification
channels and the companion page's event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()
		return MapError(runServe(cmd.Context(), e, cmd.OutOrStdout()))
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, e *runtimeEnv, out io.Writer) error {
	cfg, logger := e.cfg, e.logger

	store := e.settingsStore()
	client := e.scoringClient()
	scorer := scoring.NewSettingsScorer(client, store)

	bus := messaging.NewBus(messaging.WithLogger(logger.Named("bus")))
	defer bus.Close()

	var deadLetter *webhook.DeadLetterStore
	if cfg.Notifications.DeadLetterPath != "" {
		deadLetter = webhook.NewDeadLetterStore(cfg.Notifications.DeadLetterPath)
	}
	registry, err := notify.NewRegistry(cfg.Notifications, out, deadLetter, logger.Named("notify"))
	if err != nil {
		return err
	}
	defer registry.Wait()

	events := sse.NewBroadcaster()
	registry.Add(notify.Named(events, "events", "sse"))

	deps := background.Deps{
		Store:    store,
		Checker:  client,
		Notifier: registry.Notifier(logger.Named("notify")),
	}

	var host *chrome.Host
	if cfg.Chrome.Enabled {
		opts := []chrome.Option{
			chrome.WithLogger(logger.Named("chrome")),
			chrome.WithInstaller(installer(bus, scorer, e)),
		}
		if u := e.websiteURL(); u != "" {
			opts = append(opts, chrome.WithWebsite(u))
		}
		host, err = chrome.Connect(ctx, cfg.Chrome, opts...)
		if err != nil {
			return err
		}
		defer host.Close()
		deps.Tabs, deps.Injector, deps.Menus = host, host, host
	}

	orch := background.New(deps, background.WithLogger(logger.Named("background")))
	if err := orch.Attach(bus); err != nil {
		return err
	}
	defer orch.Close()

	if err := seedServiceURL(ctx, store, cfg.Settings.ServiceURL); err != nil {
		return err
	}
	if err := orch.OnInstalled(ctx); err != nil {
		return err
	}

	bridgeSrv := bridge.NewServer(bus, bridge.WithServerLogger(logger.Named("bridge")))
	var webSrv *web.Server
	if cfg.Web.Enabled {
		webSrv, err = web.NewServer(cfg.Web.Addr, orch, events, web.WithLogger(logger.Named("web")))
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serverClosed(bridgeSrv.Start(cfg.Bridge.Addr, cfg.Bridge.Path))
	})
	if webSrv != nil {
		g.Go(func() error { return serverClosed(webSrv.Start()) })
	}
	if cfg.Settings.Watch {
		g.Go(func() error { return canceled(store.Watch(gctx)) })
	}
	if host != nil {
		g.Go(func() error { return host.Run(gctx, orch, cfg.Chrome.PollInterval) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		errs = append(errs, bridgeSrv.Shutdown(shutdownCtx))
		if webSrv != nil {
			errs = append(errs, webSrv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	logger.Info("background running",
		zap.String("bridge", cfg.Bridge.URL()),
		zap.Bool("web", cfg.Web.Enabled),
		zap.Bool("chrome", cfg.Chrome.Enabled))
	return g.Wait()
}

// installer builds the content agent for each page the host reports.
func installer(bus *messaging.Bus, scorer lifecycle.Scorer, e *runtimeEnv) chrome.InstallFunc {
	opts := []content.Option{
		content.WithLogger(e.logger.Named("content")),
		content.WithControllerOptions(
			lifecycle.WithResultTimeout(e.cfg.Overlay.ResultTimeout),
			lifecycle.WithErrorTimeout(e.cfg.Overlay.ErrorTimeout)),
	}
	return func(ctx context.Context, tab browser.Tab, page *chrome.Page) (chrome.Agent, error) {
		a, err := content.Install(bus, tab, page, scorer, opts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// seedServiceURL stores the configured service URL on first start. An
// existing value always wins.
func seedServiceURL(ctx context.Context, store settings.Store, serviceURL string) error {
	current, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if current.ServiceURL != nil || serviceURL == "" {
		return nil
	}
	return store.Save(ctx, settings.Partial{ServiceURL: settings.String(serviceURL)})
}

func serverClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func canceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
