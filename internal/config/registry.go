package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry caches the markets loaded from disk and can keep them fresh
// by watching the config directory. Reads always see a consistent
// snapshot: a refresh swaps the whole market set at once.
type Registry struct {
	root string

	mu      sync.RWMutex
	byCode  map[string]*Market
	ordered []*Market

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewRegistry scans assets/markets under root and fails when no market
// is configured.
func NewRegistry(root string) (*Registry, error) {
	r := &Registry{root: root}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Markets returns the current snapshot, sorted by code.
func (r *Registry) Markets() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get looks a market up by code, case-insensitively.
func (r *Registry) Get(code string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byCode[strings.ToLower(code)]
	return m, ok
}

// Refresh reloads every market from disk and swaps the snapshot.
func (r *Registry) Refresh() error {
	markets, err := LoadMarkets(r.root)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return fmt.Errorf("no market configs found under %s", filepath.Join(r.root, "assets", "markets"))
	}

	byCode := make(map[string]*Market, len(markets))
	for _, m := range markets {
		byCode[strings.ToLower(m.Code)] = m
	}

	r.mu.Lock()
	r.byCode = byCode
	r.ordered = markets
	r.mu.Unlock()
	return nil
}

// Watch starts refreshing the registry whenever a file in the config
// directory changes. Repeated calls are no-ops. A failed refresh keeps
// the previous snapshot and is logged.
func (r *Registry) Watch() error {
	var err error
	r.watchOnce.Do(func() {
		var w *fsnotify.Watcher
		w, err = fsnotify.NewWatcher()
		if err != nil {
			return
		}
		if err = w.Add(filepath.Join(r.root, "assets", "markets")); err != nil {
			w.Close()
			return
		}
		r.watcher = w
		r.done = make(chan struct{})
		go r.watchLoop()
	})
	return err
}

func (r *Registry) watchLoop() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Refresh(); err != nil {
				log.Printf("market config refresh failed: %v", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("market config watch error: %v", err)
		case <-r.done:
			return
		}
	}
}

// Close stops the watcher, if one was started.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
