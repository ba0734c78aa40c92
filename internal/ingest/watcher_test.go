package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collectEvents(t *testing.T, evCh <-chan string, n int) map[string]struct{} {
	t.Helper()
	got := map[string]struct{}{}
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case p, ok := <-evCh:
			if !ok {
				t.Fatalf("event channel closed after %d of %d events", len(got), n)
			}
			got[p] = struct{}{}
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evCh, _, err := StartWatcher(ctx, WatchConfig{Root: root, Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("StartWatcher: %v", err)
	}

	names := []string{"a.jpg", "b.pdf", "c.png"}
	for _, name := range names {
		if werr := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); werr != nil {
			t.Fatal(werr)
		}
	}

	got := collectEvents(t, evCh, len(names))
	for _, name := range names {
		if _, ok := got[filepath.Join(root, name)]; !ok {
			t.Errorf("missing event for %s", name)
		}
	}

	cancel()
	select {
	case _, ok := <-evCh:
		if ok {
			t.Error("expected event channel to close after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel did not close after cancel")
	}
}

func TestWatcherInitialScan(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.pdf")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evCh, _, err := StartWatcher(ctx, WatchConfig{Root: root, InitialScan: true}, nil)
	if err != nil {
		t.Fatalf("StartWatcher: %v", err)
	}

	got := collectEvents(t, evCh, 1)
	if _, ok := got[existing]; !ok {
		t.Errorf("events = %v, want %s", got, existing)
	}
}
