// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types shared by the transport, the
// state store, the controllers and the presentation layer.
//
// # Key Types
//
//   - Message: Single chat entry with role, content, timestamp and cited sources
//   - SourceDocument: Knowledge-base passage attached to an assistant answer
//   - Session: Persisted conversation as listed by the backend
//   - ChatState: Aggregate of messages, sessions, selection and loading flags
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Start a fresh state with a provisional session id:
//
//	st := model.NewChatState(model.NewProvisionalSessionID(time.Now()))
//	st.Messages = append(st.Messages, model.NewUserMessage("Hello!"))
package model
