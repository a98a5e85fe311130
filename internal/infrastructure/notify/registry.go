// Package notify builds the alert sinks the background fans high-risk
// results out to.
package notify

import (
	"fmt"
	"io"

	"github.com/felixgeelhaar/truthguard/internal/infrastructure/config"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"go.uber.org/zap"
)

// Adapter is a named alert sink.
type Adapter interface {
	browser.Notifier
	Name() string
	Type() string
}

// Registry creates alert adapters from configuration.
type Registry struct {
	adapters []Adapter
	webhooks *webhook.Notifier
}

// NewRegistry creates adapters from cfg. Terminal alerts are written to out;
// failed webhook deliveries go to deadLetter when it is non-nil.
func NewRegistry(cfg config.NotificationsConfig, out io.Writer, deadLetter *webhook.DeadLetterStore, logger *zap.Logger) (*Registry, error) {
	r := &Registry{}
	if cfg.Terminal && out != nil {
		r.adapters = append(r.adapters, NewTerminal(out))
	}

	for _, sc := range cfg.Slack {
		if !sc.Enabled {
			continue
		}
		if sc.URL == "" {
			return nil, fmt.Errorf("create adapter %q: slack url is empty", sc.Name)
		}
		r.adapters = append(r.adapters, NewSlackAdapter(sc.Name, sc.URL))
	}

	var endpoints []webhook.Endpoint
	for _, wh := range cfg.Webhooks {
		if !wh.Enabled {
			continue
		}
		endpoints = append(endpoints, webhook.Endpoint{
			Name:       wh.Name,
			URL:        wh.URL,
			Secret:     wh.Secret,
			Enabled:    true,
			MaxRetries: wh.MaxRetries,
			RetryDelay: wh.RetryDelay,
		})
	}
	if len(endpoints) > 0 {
		r.webhooks = webhook.NewNotifier(endpoints, deadLetter, logger)
		r.adapters = append(r.adapters, named{Notifier: r.webhooks, name: "webhooks", kind: "webhook"})
	}
	return r, nil
}

// Adapters returns all active adapters.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Add appends an adapter built outside the configuration, such as the SSE
// broadcaster.
func (r *Registry) Add(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// Notifier returns a fan-out over every adapter.
func (r *Registry) Notifier(logger *zap.Logger) *Fanout {
	sinks := make([]browser.Notifier, 0, len(r.adapters))
	for _, a := range r.adapters {
		sinks = append(sinks, a)
	}
	return NewFanout(logger, sinks...)
}

// Wait blocks until queued webhook deliveries finish.
func (r *Registry) Wait() {
	if r.webhooks != nil {
		r.webhooks.Wait()
	}
}

// Named wraps a notifier with a name and type.
func Named(n browser.Notifier, name, kind string) Adapter {
	return named{Notifier: n, name: name, kind: kind}
}

type named struct {
	browser.Notifier
	name string
	kind string
}

func (n named) Name() string { return n.name }
func (n named) Type() string { return n.kind }
