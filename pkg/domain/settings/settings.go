// Package settings defines the extension settings record shared by every
// context and the Store interface behind which it is persisted.
package settings

import (
	"context"
	"fmt"
	"net/url"
)

// Storage keys of the flat settings record.
const (
	KeyServiceURL           = "serviceUrl"
	KeyAutoCheck            = "autoCheck"
	KeyNotificationsEnabled = "notificationsEnabled"
)

// DefaultServiceURL is the scoring service base URL used until one is saved.
const DefaultServiceURL = "http://localhost:5000/api"

// Settings is the fully resolved settings record.
type Settings struct {
	ServiceURL           string `json:"serviceUrl" yaml:"serviceUrl"`
	AutoCheck            bool   `json:"autoCheck" yaml:"autoCheck"`
	NotificationsEnabled bool   `json:"notificationsEnabled" yaml:"notificationsEnabled"`
}

// Defaults returns the settings seeded on install.
func Defaults() Settings {
	return Settings{
		ServiceURL:           DefaultServiceURL,
		AutoCheck:            false,
		NotificationsEnabled: true,
	}
}

// Partial is a settings record where any key may be absent. It is both the
// stored shape and the argument of a save.
type Partial struct {
	ServiceURL           *string `json:"serviceUrl,omitempty" yaml:"serviceUrl,omitempty"`
	AutoCheck            *bool   `json:"autoCheck,omitempty" yaml:"autoCheck,omitempty"`
	NotificationsEnabled *bool   `json:"notificationsEnabled,omitempty" yaml:"notificationsEnabled,omitempty"`
}

// Full converts resolved settings into a Partial with every key present.
func (s Settings) Full() Partial {
	return Partial{
		ServiceURL:           &s.ServiceURL,
		AutoCheck:            &s.AutoCheck,
		NotificationsEnabled: &s.NotificationsEnabled,
	}
}

// Merge returns p with every key present in update overwritten.
func (p Partial) Merge(update Partial) Partial {
	out := p
	if update.ServiceURL != nil {
		v := *update.ServiceURL
		out.ServiceURL = &v
	}
	if update.AutoCheck != nil {
		v := *update.AutoCheck
		out.AutoCheck = &v
	}
	if update.NotificationsEnabled != nil {
		v := *update.NotificationsEnabled
		out.NotificationsEnabled = &v
	}
	return out
}

// Missing returns the keys of Defaults that p lacks, as a Partial holding
// their default values.
func (p Partial) Missing() Partial {
	d := Defaults()
	var out Partial
	if p.ServiceURL == nil {
		out.ServiceURL = &d.ServiceURL
	}
	if p.AutoCheck == nil {
		out.AutoCheck = &d.AutoCheck
	}
	if p.NotificationsEnabled == nil {
		out.NotificationsEnabled = &d.NotificationsEnabled
	}
	return out
}

// IsEmpty reports whether no key is present.
func (p Partial) IsEmpty() bool {
	return p.ServiceURL == nil && p.AutoCheck == nil && p.NotificationsEnabled == nil
}

// Keys lists the storage keys present in p.
func (p Partial) Keys() []string {
	var keys []string
	if p.ServiceURL != nil {
		keys = append(keys, KeyServiceURL)
	}
	if p.AutoCheck != nil {
		keys = append(keys, KeyAutoCheck)
	}
	if p.NotificationsEnabled != nil {
		keys = append(keys, KeyNotificationsEnabled)
	}
	return keys
}

// Resolve fills absent keys with their defaults. A missing or empty service
// URL falls back to DefaultServiceURL.
func (p Partial) Resolve() Settings {
	s := Defaults()
	if p.ServiceURL != nil && *p.ServiceURL != "" {
		s.ServiceURL = *p.ServiceURL
	}
	if p.AutoCheck != nil {
		s.AutoCheck = *p.AutoCheck
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	return s
}

// Validate checks the values present in p.
func (p Partial) Validate() error {
	if p.ServiceURL != nil {
		u, err := url.Parse(*p.ServiceURL)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", KeyServiceURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid %s %q: scheme must be http or https", KeyServiceURL, *p.ServiceURL)
		}
	}
	return nil
}

// Change is delivered to subscribers after a save.
type Change struct {
	Keys     []string
	Settings Settings
}

// Store persists the settings record. Implementations must be safe for use
// from several contexts at once; concurrent saves are last-write-wins.
type Store interface {
	// Load returns the stored record, with absent keys left nil.
	Load(ctx context.Context) (Partial, error)
	// Save merges update into the stored record.
	Save(ctx context.Context, update Partial) error
	// Subscribe registers fn for change notifications and returns a func
	// that removes it.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Get loads the record from store and resolves defaults.
func Get(ctx context.Context, store Store) (Settings, error) {
	p, err := store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	return p.Resolve(), nil
}

// String returns a pointer to v, for building a Partial.
func String(v string) *string { return &v }

// Bool returns a pointer to v, for building a Partial.
func Bool(v bool) *bool { return &v }
