// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the chat state store and its closed set of actions.
//
// The store is the only owner of model.ChatState. Controllers change it by
// dispatching actions (pure reducers); views read deep-copied snapshots or
// subscribe to commits. The store performs no I/O.
//
// # Key Types
//
//   - Store: Mutex-guarded state with Dispatch, Batch, Snapshot and Subscribe
//   - Action: Pure reducer func(model.ChatState) model.ChatState
//   - MessagePatch: Partial update merged into the last message
//
// # Usage
//
//	st := state.New()
//	unsubscribe := st.Subscribe(func(s model.ChatState) { redraw(s) })
//	defer unsubscribe()
//
//	st.AddMessage(model.NewUserMessage("hi"))
//	st.UpdateLastMessage(state.ContentPatch("hello"))
package state
