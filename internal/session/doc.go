// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates session CRUD against the backend.
//
// The Orchestrator keeps the state store's session list, selection and
// message list consistent with the server. Rename, delete and the
// activity toggle are optimistic: the store changes first, and a failed
// request triggers a full re-fetch of the list plus an error notification.
// Create waits for the server before touching the list.
//
// # Key Types
//
//   - Orchestrator: Refresh, Create, Select, Rename, SetActive, Delete,
//     DeleteAll, Search, Export, Cleanup, NewChat
//   - Backend: The api.Client methods the orchestrator calls
//   - Optimistic: One local change confirmed by one request
//
// # Usage
//
//	orch := session.New(session.Config{
//	    Store:    store,
//	    Backend:  client,
//	    Streams:  controller,
//	    Notifier: notifier,
//	})
//	if err := orch.Refresh(ctx); err != nil {
//	    // already reported through the notifier
//	}
//	orch.Select(ctx, "abc123")
//
// Switching sessions stops the active chat stream first, so its terminal
// message never lands in the newly loaded conversation.
package session
