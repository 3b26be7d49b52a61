// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
//
// The view is a thin consumer of the core: it renders state snapshots pushed
// by the session store, forwards input to the chat controller, and maps
// sidebar keys onto session orchestrator operations. It never mutates chat
// state itself.
//
// # Key Types
//
//   - Model: The Bubble Tea model (sidebar, transcript viewport, input, toasts)
//   - Config: Collaborators and UI options
//   - KeyMap: Key bindings with help text
//
// # Usage
//
//	m := chat.New(chat.Config{
//	    Store:    store,
//	    Chat:     controller,
//	    Sessions: orchestrator,
//	    Notes:    notes,
//	    Theme:    styles.NewTheme(cfg.UI.Theme),
//	})
//	defer m.Close()
//	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
//
// # Commands
//
// Input starting with "/" is a command: /new, /rename <title>, /delete,
// /refresh, /search <query>, /export [md|html|json|txt], /help, /quit.
package chat
