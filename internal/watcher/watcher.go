// internal/watcher/watcher.go
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Status is what the tracker can say about a workspace since the last
// MarkClean.
type Status int

const (
	// StatusUnknown means the tracker cannot vouch for the workspace: not
	// yet baselined, an event was dropped, or the watch degraded. Callers
	// must do a full rescan.
	StatusUnknown Status = iota
	// StatusClean means no filesystem event has been observed since the
	// last MarkClean.
	StatusClean
	// StatusDirty means at least one event has been observed.
	StatusDirty
)

// Tracker watches a workspace tree and answers one question cheaply: has
// anything possibly changed since the last checkpoint? It is strictly an
// optimization hint — every degraded state reports StatusUnknown, which
// forces the caller back to content hashing.
type Tracker struct {
	root    string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	status  Status
	healthy bool
	closed  bool
}

// New creates a Tracker over root and all its current subdirectories.
func New(root string) (*Tracker, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	t := &Tracker{
		root:    root,
		watcher: w,
		done:    make(chan struct{}),
		status:  StatusUnknown,
		healthy: true,
	}

	// fsnotify watches are per-directory, so walk the tree. Directories
	// created later are added from the event loop.
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	go t.loop()
	return t, nil
}

func (t *Tracker) loop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.markDirty()

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := t.watcher.Add(event.Name); err != nil {
						t.degrade(err)
					}
				}
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.degrade(err)

		case <-t.done:
			return
		}
	}
}

func (t *Tracker) markDirty() {
	t.mu.Lock()
	if t.status != StatusDirty {
		t.status = StatusDirty
	}
	t.mu.Unlock()
}

// degrade permanently downgrades the tracker to StatusUnknown. Once an
// event may have been missed, clean can never be trusted again.
func (t *Tracker) degrade(err error) {
	log.Printf("[watcher] Watch on %s degraded: %v", t.root, err)
	t.mu.Lock()
	t.healthy = false
	t.mu.Unlock()
}

// Status reports the tracker's current answer.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.healthy {
		return StatusUnknown
	}
	return t.status
}

// MarkClean records that the caller has just taken a full fingerprint, so
// the workspace is known-good as of now. No-op on a degraded tracker.
func (t *Tracker) MarkClean() {
	t.mu.Lock()
	if t.healthy {
		t.status = StatusClean
	}
	t.mu.Unlock()
}

// Close stops the tracker.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	return t.watcher.Close()
}
