package script

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zot/conductor/internal/config"
)

// reloadRecorder collects reload callback invocations.
type reloadRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *reloadRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *reloadRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startHotLoader(t *testing.T, dir string, rec *reloadRecorder) *HotLoader {
	t.Helper()
	cfg := config.DefaultConfig()
	var buf bytes.Buffer
	cfg.SetLogOutput(&buf)

	h, err := NewHotLoader(cfg, []string{dir}, rec.record)
	if err != nil {
		t.Fatalf("Failed to create hot loader: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Failed to start hot loader: %v", err)
	}
	t.Cleanup(func() { h.Stop() })
	return h
}

func TestHotLoaderReportsNewScript(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}
	startHotLoader(t, dir, rec)

	path := filepath.Join(dir, "fresh.lua")
	if err := os.WriteFile(path, []byte(`return {}`), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		for _, p := range rec.snapshot() {
			if p == path {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatalf("Hot loader never reported %s (saw %v)", path, rec.snapshot())
	}
}

func TestHotLoaderIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}
	startHotLoader(t, dir, rec)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	time.Sleep(400 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("Expected no reloads for non-lua files, got %v", got)
	}
}

func TestHotLoaderDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "busy.lua")
	if err := os.WriteFile(path, []byte(`return {}`), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	rec := &reloadRecorder{}
	startHotLoader(t, dir, rec)

	// Burst of writes inside the debounce window
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(`return {}`), 0o644); err != nil {
			t.Fatalf("Failed to rewrite script: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		return len(rec.snapshot()) >= 1
	})
	if !ok {
		t.Fatal("Hot loader never reported the rewritten script")
	}

	// Let any stragglers settle, then check the burst collapsed
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) > 2 {
		t.Errorf("Expected debouncing to collapse the burst, got %d reloads", len(got))
	}
}
