// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the kbchat TUI.

Colors are lipgloss.AdaptiveColor values so they follow the terminal
background. Theme bundles the lipgloss styles used by the chat view, the
session sidebar and the toast stack.

# Usage Example

	theme := styles.NewTheme(cfg.UI.Theme)
	header := theme.Header.Width(width).Render("kbchat")
*/
package styles
