// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
//
// This file defines the Bubble Tea message types used by the chat view.
package chat

import (
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
)

// StateMsg carries a store snapshot.
type StateMsg struct {
	State model.ChatState
}

// NotifyMsg carries a notification for the toast stack.
type NotifyMsg struct {
	Note notify.Notification
}

// OpDoneMsg reports the end of a background operation. Failures have
// already been surfaced as notifications by the core.
type OpDoneMsg struct {
	Op  string
	Err error
}

// SearchResultMsg carries sessions matching a search.
type SearchResultMsg struct {
	Query    string
	Sessions []model.Session
}

// feedClosedMsg signals that a feed channel closed.
type feedClosedMsg struct{}
