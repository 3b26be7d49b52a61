// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for kbchat.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce coalesces bursts of file events from editors that
// write through a temp file and rename.
const DefaultWatchDebounce = time.Second

// =============================================================================
// CONFIG STORE (THREAD-SAFE)
// =============================================================================

// Store holds the current configuration. It is injected into components
// instead of a package-level global.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	path      string
	logger    *zap.Logger
	listeners []func(*Config)
	debounce  time.Duration
}

// NewStore creates a store for cfg backed by the file at path. An empty
// path keeps changes in memory only.
func NewStore(cfg *Config, path string, logger *zap.Logger) *Store {
	if cfg == nil {
		cfg = Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:      cfg.Clone(),
		path:     path,
		logger:   logger.Named("config"),
		debounce: DefaultWatchDebounce,
	}
}

// OpenStore loads the config at path and wraps it in a Store.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return NewStore(cfg, path, logger), nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// OnChange registers fn to run after every applied change, from Update or
// from the file watcher.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies fn to a copy of the configuration, validates it, and
// writes it to disk if anything changed.
func (s *Store) Update(fn func(*Config) error) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.SetDefaults()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid config: %w", err)
	}
	if reflect.DeepEqual(next, s.cfg) {
		s.mu.Unlock()
		return nil
	}
	if s.path != "" {
		if err := SaveTOML(next, s.path); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.cfg = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// Set is Update for a single dot-notation key.
func (s *Store) Set(key string, value any) error {
	return s.Update(func(c *Config) error { return c.Set(key, value) })
}

func (s *Store) notify(cfg *Config) {
	s.mu.RLock()
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg.Clone())
	}
}

// reload re-reads the backing file and applies it if it differs.
func (s *Store) reload() error {
	cfg, err := LoadFromPath(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// The token comes from the environment or storage, never the file.
	if cfg.API.Token == "" {
		cfg.API.Token = s.cfg.API.Token
	}
	if reflect.DeepEqual(cfg, s.cfg) {
		s.mu.Unlock()
		return nil
	}
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("config reloaded", zap.String("path", s.path))
	s.notify(cfg)
	return nil
}

// =============================================================================
// FILE WATCHER
// =============================================================================

// Watch reloads the configuration when its file changes, until ctx ends.
// The directory is watched rather than the file so that rename-on-save
// editors keep working. Invalid edits are logged and ignored.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(s.path)
	timer := time.NewTimer(s.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", zap.Error(err))

		case <-timer.C:
			if err := s.reload(); err != nil {
				s.logger.Warn("ignoring invalid config change", zap.Error(err))
			}
		}
	}
}
