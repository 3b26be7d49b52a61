// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for kbchat.
//
// # Key Types
//
//   - Config: Sections api, stream, storage, ui and log
//   - Store: Current config with write-on-change updates and a file watcher
//   - ValidateErrors: All validation failures of a config
//
// # Usage
//
//	path, _ := config.Path()
//	store, err := config.OpenStore(path, logger)
//	if err != nil {
//	    return err
//	}
//	if err := store.Watch(ctx); err != nil {
//	    logger.Warn("config watcher disabled", zap.Error(err))
//	}
//
//	store.Set("ui.theme", "light") // validated, saved atomically
//
// # Environment
//
//   - KBCHAT_CONFIG: config file path
//   - KBCHAT_API_URL: overrides api.base_url
//   - KBCHAT_TOKEN: bearer token, never written to disk
//   - KBCHAT_LOG_LEVEL: overrides log.level
package config
