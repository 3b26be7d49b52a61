// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/session"
	"github.com/jeranaias/kbchat/internal/state"
	"github.com/jeranaias/kbchat/internal/storage"
	"github.com/jeranaias/kbchat/internal/stream"
)

// =============================================================================
// APP
// =============================================================================

// App builds the collaborators shared by the subcommands on first use, so
// `kbchat version` and `kbchat config path` never touch the network or the
// database.
type App struct {
	opts  Options
	flags globalFlags

	mu       sync.Mutex
	loaded   bool
	cfgStore *config.Store
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.Store
	client   *api.Client
}

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	configPath string
	apiURL     string
	logLevel   string
	json       bool
	noColor    bool
}

// ConfigPath returns the config file in effect.
func (a *App) ConfigPath() (string, error) {
	if a.flags.configPath != "" {
		return a.flags.configPath, nil
	}
	return config.Path()
}

// load opens config, logging, storage and the API client once.
func (a *App) load() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil
	}

	path, err := a.ConfigPath()
	if err != nil {
		return &ConfigError{Err: err}
	}
	fileCfg, err := config.LoadFromPath(path)
	if err != nil {
		return &ConfigError{Err: err}
	}
	cfg := fileCfg.Clone()
	if a.flags.apiURL != "" {
		cfg.API.BaseURL = a.flags.apiURL
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return &ConfigError{Err: err}
	}
	// Flag overrides stay out of the store so `config set` never saves them.
	cfgStore := config.NewStore(fileCfg, path, logger)

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = storage.DefaultPath()
	}
	store, err := storage.Open(dbPath, storage.WithLogger(logger))
	if err != nil {
		logger.Sync()
		return fmt.Errorf("open local storage: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL).
		WithTimeout(cfg.API.Timeout.Duration).
		WithTokenStore(tokenSource{override: cfg.API.Token, store: store}).
		WithLogger(logger).
		WithUnauthorizedHandler(a.onUnauthorized)

	a.cfgStore = cfgStore
	a.cfg = cfg
	a.logger = logger
	a.store = store
	a.client = client
	a.loaded = true

	logger.Debug("kbchat started",
		zap.String("config", path),
		zap.String("api", cfg.API.BaseURL),
		zap.String("storage", dbPath))
	return nil
}

// onUnauthorized runs after the client has dropped a rejected token.
func (a *App) onUnauthorized() {
	a.logger.Warn("backend rejected the stored token")
}

// Config returns the effective configuration, flags applied.
func (a *App) Config() (*config.Config, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	return a.cfg.Clone(), nil
}

// Client returns the API client.
func (a *App) Client() (*api.Client, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// Storage returns the local key/value store.
func (a *App) Storage() (*storage.Store, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	return a.store, nil
}

// Logger returns the application logger, or a no-op logger before load.
func (a *App) Logger() *zap.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// Close flushes the log and closes storage.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
	a.loaded = false
}

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// tokenSource prefers a token from the environment over the stored one.
// Writes always go to storage.
type tokenSource struct {
	override string
	store    *storage.Store
}

func (t tokenSource) Token() string {
	if t.override != "" {
		return t.override
	}
	return t.store.Token()
}

func (t tokenSource) SetToken(token string) error { return t.store.SetToken(token) }

func (t tokenSource) ClearToken() error { return t.store.ClearToken() }

// =============================================================================
// CONVERSATION WIRING
// =============================================================================

// conversation is one session store with the controller and orchestrator
// that act on it.
type conversation struct {
	store    *state.Store
	chat     *chat.Controller
	sessions *session.Orchestrator
}

// conversation wires a fresh state store to the backend. Notifications go
// to n and to the log.
func (a *App) conversation(n notify.Notifier) (*conversation, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	cfg, logger := a.cfg, a.logger
	notifier := notify.Multi{notify.NewLog(logger), n}

	st := state.New()
	ctl := chat.New(chat.Config{
		Store:       st,
		Opener:      stream.NewTransport(a.client, logger),
		Sender:      a.client,
		Notifier:    notifier,
		Logger:      logger,
		UpdateRate:  rate.Limit(cfg.Stream.UpdateRate),
		UpdateBurst: cfg.Stream.Burst,
	})
	orch := session.New(session.Config{
		Store:    st,
		Backend:  a.client,
		Streams:  ctl,
		Notifier: notifier,
		Logger:   logger,
		ListOptions: api.ListOptions{
			UserID: cfg.API.UserID,
			Limit:  cfg.UI.SessionLimit,
		},
	})
	return &conversation{store: st, chat: ctl, sessions: orch}, nil
}

// close stops the active turn and waits for background session work.
func (c *conversation) close(ctx context.Context) {
	_ = c.chat.Stop(ctx)
	c.sessions.Wait()
}
