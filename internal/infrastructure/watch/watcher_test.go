package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileWatcher_DetectsFileWrite(t *testing.T) {
	dir := t.TempDir()
	settingsFile := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(settingsFile, []byte("autoCheck: false\n"), 0600); err != nil {
		t.Fatal(err)
	}

	changes := make(chan ChangeEvent, 8)
	w, err := NewFileWatcher(50*time.Millisecond, func(e ChangeEvent) {
		changes <- e
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(settingsFile); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx)
	}()

	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(settingsFile, []byte("autoCheck: true\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-changes:
		if e.ChangeType == "" {
			t.Error("expected a non-empty change type")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change event")
	}
}

func TestFileWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	settingsFile := filepath.Join(dir, "settings.yaml")

	var eventCount atomic.Int32
	w, err := NewFileWatcher(30*time.Millisecond, func(e ChangeEvent) {
		eventCount.Add(1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(settingsFile); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if got := eventCount.Load(); got != 0 {
		t.Errorf("expected no events for sibling file, got %d", got)
	}
}

func TestFileWatcher_ContextCancellation(t *testing.T) {
	w, err := NewFileWatcher(50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(filepath.Join(t.TempDir(), "settings.yaml")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
