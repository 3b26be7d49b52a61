// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides kbchat's local key/value storage.
//
// Values live in a single SQLite table (pure Go driver, no cgo). The store
// holds the bearer token, the last selected session, and small UI
// preferences. Conversations themselves are always fetched from the
// backend.
//
// # Key Types
//
//   - Store: Key/value store; implements api.TokenStore
//
// # Usage
//
//	store, err := storage.Open(storage.DefaultPath())
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	client := api.NewClient("").WithTokenStore(store)
//
// # Storage Location
//
// The database is stored in ~/.kbchat/local.db unless configured otherwise.
package storage
