// internal/trigger/filesystem_test.go
package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchInitDelay = 200 * time.Millisecond

func startFilesystem(t *testing.T, f *Filesystem) chan Event {
	t.Helper()
	events := make(chan Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		f.Stop()
	})
	go func() {
		if err := f.Start(ctx, events); err != nil && err != context.Canceled {
			t.Errorf("Start failed: %v", err)
		}
	}()
	time.Sleep(watchInitDelay)
	return events
}

func TestFilesystemTrigger(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(target, []byte("a: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	trigger, err := NewFilesystem("config-reload", []string{target}, 0)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	events := startFilesystem(t, trigger)

	// Other files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case event := <-events:
		t.Fatalf("unexpected event for unwatched file: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(target, []byte("a: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case event := <-events:
		if event.Name != "config-reload" {
			t.Errorf("expected name config-reload, got %s", event.Name)
		}
		if event.Type != TypeFileModified {
			t.Errorf("expected type file_modified, got %s", event.Type)
		}
		if event.Path != target {
			t.Errorf("expected path %s, got %s", target, event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestFilesystemTrigger_SeesReplacedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")
	os.WriteFile(target, []byte("a: 1\n"), 0644)

	trigger, err := NewFilesystem("config-reload", []string{target}, 0)
	if err != nil {
		t.Fatal(err)
	}
	events := startFilesystem(t, trigger)

	tmp := filepath.Join(dir, ".config.yaml.swp")
	os.WriteFile(tmp, []byte("a: 3\n"), 0644)
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-events:
		if event.Path != target {
			t.Errorf("expected path %s, got %s", target, event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event after rename")
	}
}

func TestFilesystemTrigger_Debounce(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")
	os.WriteFile(target, []byte("a: 1\n"), 0644)

	trigger, err := NewFilesystem("config-reload", []string{target}, 300*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	events := startFilesystem(t, trigger)

	for i := 0; i < 5; i++ {
		os.WriteFile(target, []byte{byte('0' + i)}, 0644)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for debounced event")
	}
	select {
	case event := <-events:
		t.Errorf("burst should coalesce into one event, got extra %+v", event)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestFilesystemTrigger_DoubleStartReturnsError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.yaml")
	trigger, err := NewFilesystem("double-start", []string{target}, 0)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	events := startFilesystem(t, trigger)

	if err := trigger.Start(context.Background(), events); err == nil {
		t.Error("expected error on double Start(), got nil")
	}
}

func TestFilesystemTrigger_StopIsIdempotent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.yaml")
	trigger, err := NewFilesystem("stop-test", []string{target}, time.Second)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	startFilesystem(t, trigger)

	if err := trigger.Stop(); err != nil {
		t.Errorf("first Stop failed: %v", err)
	}
	if err := trigger.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestNewFilesystemNoFiles(t *testing.T) {
	if _, err := NewFilesystem("empty", nil, 0); err == nil {
		t.Error("expected error with no files")
	}
}
