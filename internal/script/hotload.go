package script

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zot/conductor/internal/config"
)

// HotLoader watches the controller roots for file changes and reports
// created or modified .lua files through a callback. The callback decides
// whether a change means a new unit or a reload of an existing one.
type HotLoader struct {
	config *config.Config
	roots  []string
	reload func(path string) // invoked per changed file, after debouncing

	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	mu          sync.Mutex

	// Debouncing
	pendingReloads map[string]time.Time
	debounceMu     sync.Mutex
	debounceDelay  time.Duration

	done chan struct{}
}

// NewHotLoader creates a hot loader for the given roots.
// reload is called once per settled change to a .lua file.
func NewHotLoader(cfg *config.Config, roots []string, reload func(path string)) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	h := &HotLoader{
		config:         cfg,
		roots:          roots,
		reload:         reload,
		watcher:        watcher,
		watchedDirs:    make(map[string]bool),
		pendingReloads: make(map[string]time.Time),
		debounceDelay:  100 * time.Millisecond,
		done:           make(chan struct{}),
	}

	return h, nil
}

// Start begins watching for file changes.
func (h *HotLoader) Start() error {
	for _, root := range h.roots {
		if err := h.watchTree(root); err != nil {
			h.config.Log(0, "HotLoader: cannot watch %s: %v", root, err)
		}
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "HotLoader: watching %v for changes", h.roots)
	return nil
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	close(h.done)
	return h.watcher.Close()
}

// watchTree adds watches for a directory and every directory nested under it.
// Roots are deep-indexed, so new files anywhere in the tree matter.
func (h *HotLoader) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			h.addWatch(path)
		}
		return nil
	})
}

// addWatch adds a directory to the watch list.
func (h *HotLoader) addWatch(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watchedDirs[dir] {
		return
	}
	if err := h.watcher.Add(dir); err != nil {
		h.config.Log(0, "HotLoader: cannot watch %s: %v", dir, err)
		return
	}
	h.watchedDirs[dir] = true
	h.config.Log(2, "HotLoader: added watch for %s", dir)
}

// eventLoop processes file system events.
func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Log(0, "HotLoader: watcher error: %v", err)
		}
	}
}

// handleEvent processes a single file system event.
func (h *HotLoader) handleEvent(event fsnotify.Event) {
	h.config.Log(3, "HotLoader: event %s on %s", event.Op, event.Name)

	// New directories under a root need their own watch
	if event.Op&fsnotify.Create != 0 && !strings.HasSuffix(event.Name, ".lua") {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			h.addWatch(event.Name)
		}
		return
	}

	if !strings.HasSuffix(event.Name, ".lua") {
		return
	}

	if event.Op&fsnotify.Write != 0 || event.Op&fsnotify.Create != 0 {
		h.queueReload(event.Name)
	}
}

// queueReload queues a file for reload with debouncing.
func (h *HotLoader) queueReload(filePath string) {
	h.debounceMu.Lock()
	h.pendingReloads[filePath] = time.Now()
	h.debounceMu.Unlock()
}

// debounceLoop processes pending reloads after the debounce delay.
func (h *HotLoader) debounceLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.processPendingReloads()
		}
	}
}

// processPendingReloads reloads files that have been pending for longer than
// debounceDelay.
func (h *HotLoader) processPendingReloads() {
	h.debounceMu.Lock()
	now := time.Now()
	var toReload []string
	for path, queuedAt := range h.pendingReloads {
		if now.Sub(queuedAt) >= h.debounceDelay {
			toReload = append(toReload, path)
			delete(h.pendingReloads, path)
		}
	}
	h.debounceMu.Unlock()

	for _, path := range toReload {
		h.reloadFile(path)
	}
}

// reloadFile invokes the reload callback with panic recovery so a broken
// script cannot crash the host.
func (h *HotLoader) reloadFile(path string) {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log(0, "HotLoader: PANIC reloading %s: %v", path, r)
		}
	}()

	h.config.Log(1, "HotLoader: reloading %s", path)
	h.reload(path)
}
