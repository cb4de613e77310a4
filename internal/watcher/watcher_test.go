package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsEventNode(t *testing.T) {
	cases := map[string]bool{
		"/dev/input/event3": true,
		"/dev/input/event0": true,
		"/dev/input/mouse0": false,
		"/dev/input/js0":    false,
	}
	for path, want := range cases {
		if got := isEventNode(path); got != want {
			t.Errorf("isEventNode(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherReportsDeviceAdded(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "event7")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	select {
	case ev := <-w.Events():
		if ev.Kind != DeviceAdded {
			t.Errorf("expected DeviceAdded, got %v", ev.Kind)
		}
		if ev.Path != path {
			t.Errorf("expected path %s, got %s", path, ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for DeviceAdded event")
	}
}

func TestWatcherIgnoresNonEventNodes(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "mouse0"), nil, 0600); err != nil {
		t.Fatalf("write mouse0: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for non-keyboard node: %+v", ev)
	case <-time.After(500 * time.Millisecond):
		// Expected: nothing surfaced.
	}
}

func TestWatcherReportsDeviceRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event2")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove %s: %v", path, err)
	}

	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == DeviceRemoved && ev.Path == path {
				return
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for DeviceRemoved event")
		}
	}
}

func TestStopClosesEventsChannel(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Error("expected Events channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Events channel to close")
	}
}
