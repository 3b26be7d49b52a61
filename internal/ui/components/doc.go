// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides reusable UI components for the kbchat TUI.

Components are plain structs rendered with a *styles.Theme. They hold view
state only; session and message data come from state snapshots.

# Key Types

  - ToastStack: Auto-expiring notifications fed from notify.Channel
  - Sidebar: Session list with cursor, selection highlight and relative times

# Usage

	toasts := components.NewToastStack()
	toasts.Push(n)
	view := components.RenderToastStack(theme, toasts.Toasts(), width)

	sidebar := components.NewSidebar(28)
	sidebar.Sync(store.Snapshot())
	left := sidebar.View(theme)
*/
package components
