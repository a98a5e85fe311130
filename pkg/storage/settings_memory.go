package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
)

// ErrInvalidSettings is returned when a save carries values that fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// MemorySettingsStore keeps the settings record in memory. It backs tests and
// single-process runs where nothing needs to survive a restart.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	record settings.Partial
	subs   subscribers
}

// NewMemorySettingsStore creates a store holding initial.
func NewMemorySettingsStore(initial settings.Partial) *MemorySettingsStore {
	return &MemorySettingsStore{record: settings.Partial{}.Merge(initial)}
}

func (s *MemorySettingsStore) Load(ctx context.Context) (settings.Partial, error) {
	if err := ctx.Err(); err != nil {
		return settings.Partial{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return settings.Partial{}.Merge(s.record), nil
}

func (s *MemorySettingsStore) Save(ctx context.Context, update settings.Partial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := update.Validate(); err != nil {
		return errors.Join(ErrInvalidSettings, err)
	}

	s.mu.Lock()
	old := s.record
	s.record = s.record.Merge(update)
	current := s.record
	s.mu.Unlock()

	if keys := changedKeys(old, current); len(keys) > 0 {
		s.subs.notify(settings.Change{Keys: keys, Settings: current.Resolve()})
	}
	return nil
}

func (s *MemorySettingsStore) Subscribe(fn func(settings.Change)) func() {
	return s.subs.add(fn)
}

// subscribers is the change-listener list shared by the store implementations.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(settings.Change)
}

func (s *subscribers) add(fn func(settings.Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(settings.Change))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
		})
	}
}

func (s *subscribers) notify(change settings.Change) {
	s.mu.Lock()
	fns := make([]func(settings.Change), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// changedKeys lists the keys whose resolved or presence state differs.
func changedKeys(old, current settings.Partial) []string {
	var keys []string
	if !sameString(old.ServiceURL, current.ServiceURL) {
		keys = append(keys, settings.KeyServiceURL)
	}
	if !sameBool(old.AutoCheck, current.AutoCheck) {
		keys = append(keys, settings.KeyAutoCheck)
	}
	if !sameBool(old.NotificationsEnabled, current.NotificationsEnabled) {
		keys = append(keys, settings.KeyNotificationsEnabled)
	}
	return keys
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
