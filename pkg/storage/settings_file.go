package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/truthguard/internal/infrastructure/watch"
	"github.com/felixgeelhaar/truthguard/pkg/domain/settings"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const SettingsFile = "settings.yaml"

// FileSettingsStore persists the settings record as a flat YAML file. Several
// processes may share the file; Watch picks up writes made by the others.
type FileSettingsStore struct {
	path        string
	retryConfig retry.Config
	logger      *zap.Logger

	mu   sync.Mutex
	last settings.Partial
	subs subscribers
}

// FileOption configures a FileSettingsStore.
type FileOption func(*FileSettingsStore)

// WithLogger sets the logger used for watch errors.
func WithLogger(l *zap.Logger) FileOption {
	return func(s *FileSettingsStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileSettingsStore creates a store backed by the file at path.
func NewFileSettingsStore(path string, opts ...FileOption) *FileSettingsStore {
	s := &FileSettingsStore{
		path: path,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the settings file location.
func (s *FileSettingsStore) Path() string {
	return s.path
}

// Exists reports whether the settings file has been written.
func (s *FileSettingsStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileSettingsStore) Load(ctx context.Context) (settings.Partial, error) {
	retryer := retry.New[settings.Partial](s.retryConfig)
	p, err := retryer.Do(ctx, func(ctx context.Context) (settings.Partial, error) {
		return s.read()
	})
	if err != nil {
		return settings.Partial{}, err
	}

	s.mu.Lock()
	s.last = p
	s.mu.Unlock()
	return p, nil
}

func (s *FileSettingsStore) Save(ctx context.Context, update settings.Partial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := update.Validate(); err != nil {
		return errors.Join(ErrInvalidSettings, err)
	}

	s.mu.Lock()
	current, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := current.Merge(update)
	if err := s.write(merged); err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.last
	s.last = merged
	s.mu.Unlock()

	if keys := changedKeys(old, merged); len(keys) > 0 {
		s.subs.notify(settings.Change{Keys: keys, Settings: merged.Resolve()})
	}
	return nil
}

func (s *FileSettingsStore) Subscribe(fn func(settings.Change)) func() {
	return s.subs.add(fn)
}

// Watch notifies subscribers of changes written to the file by other
// processes. It blocks until ctx is cancelled.
func (s *FileSettingsStore) Watch(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	w, err := watch.NewFileWatcher(100*time.Millisecond, func(e watch.ChangeEvent) {
		s.reload(e)
	})
	if err != nil {
		return err
	}
	if err := w.Add(s.path); err != nil {
		_ = w.Close()
		return err
	}
	return w.Run(ctx)
}

func (s *FileSettingsStore) reload(e watch.ChangeEvent) {
	s.mu.Lock()
	current, err := s.read()
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("reload settings", zap.String("path", e.Path), zap.Error(err))
		return
	}
	old := s.last
	s.last = current
	s.mu.Unlock()

	if keys := changedKeys(old, current); len(keys) > 0 {
		s.logger.Debug("settings changed on disk", zap.String("change", e.ChangeType), zap.Strings("keys", keys))
		s.subs.notify(settings.Change{Keys: keys, Settings: current.Resolve()})
	}
}

func (s *FileSettingsStore) read() (settings.Partial, error) {
	// #nosec G304 -- path is chosen by the operator via config
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings.Partial{}, nil
		}
		return settings.Partial{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var p settings.Partial
	if err := yaml.Unmarshal(data, &p); err != nil {
		return settings.Partial{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return p, nil
}

func (s *FileSettingsStore) write(p settings.Partial) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	// G301: Use 0700 for directories
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
