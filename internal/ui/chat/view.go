// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/components"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	inputHeight  = 3
	statusHeight = 1
	minBodyWidth = 20
)

func (m *Model) sidebarVisible() bool {
	return m.cfg.SidebarWidth > 0 && m.width-m.cfg.SidebarWidth >= minBodyWidth
}

func (m *Model) bodyWidth() int {
	w := m.width
	if m.sidebarVisible() {
		w -= m.cfg.SidebarWidth + 1
	}
	return max(w, 1)
}

// layout recomputes component sizes from the window and overlays.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	overlay := 0
	if v := m.overlayView(); v != "" {
		overlay = lipgloss.Height(v)
	}
	bodyHeight := max(m.height-headerHeight-inputHeight-statusHeight-overlay, 1)

	m.viewport.Width = m.bodyWidth()
	m.viewport.Height = bodyHeight
	m.sidebar.SetSize(m.cfg.SidebarWidth, bodyHeight+overlay)
	m.input.Width = max(m.bodyWidth()-6, 10)
	m.renderer.setWidth(max(m.bodyWidth()-4, 10))
	m.help.Width = m.width
}

// refreshViewport re-renders the transcript, keeping the tail in view while
// an answer streams in.
func (m *Model) refreshViewport() {
	if m.width == 0 {
		return
	}
	content := renderTranscript(m.theme, m.renderer, m.st.Messages, m.bodyWidth(), m.cfg.ShowSources)
	m.viewport.SetContent(content)
	if m.followTail {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the whole screen.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	body := m.viewport.View()
	if overlay := m.overlayView(); overlay != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, overlay)
	}
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(m.theme), " ", body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		m.inputView(),
		m.statusView(),
	)
}

func (m *Model) headerView() string {
	title := model.DefaultSessionTitle
	if m.st.SelectedSession != nil {
		title = m.st.SelectedSession.DisplayTitle()
	}
	left := m.theme.HeaderTitle.Render("kbchat") + "  " + util.TruncateWidth(title, max(m.width/2, 10))

	var right string
	switch {
	case m.st.IsLoading:
		right = m.spinner.View() + " answering"
	case m.st.IsSessionsLoading:
		right = m.spinner.View() + " loading"
	}
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// overlayView is the toast stack plus inline error and help, shown under
// the transcript.
func (m *Model) overlayView() string {
	var parts []string
	if m.st.Error != "" {
		parts = append(parts, m.theme.Error.Render(util.TruncateWidth(m.st.Error, m.bodyWidth())))
	}
	if toasts := m.toasts.Toasts(); len(toasts) > 0 {
		parts = append(parts, components.RenderToastStack(m.theme, toasts, m.bodyWidth()))
	}
	if m.showHelp {
		parts = append(parts, m.help.FullHelpView(m.keys.FullHelp()))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) inputView() string {
	return m.theme.InputContainer.Width(max(m.width-2, 1)).Render(m.input.View())
}

func (m *Model) statusView() string {
	var left string
	switch {
	case m.mode == modeRename:
		left = "Renaming: Enter to save, Esc to cancel"
	case m.pendingDelete != "":
		left = "Press d again to delete"
	case m.search != nil:
		left = "Search: " + m.search.Query + " (Esc to clear)"
	case m.sidebar.Focused():
		left = m.help.ShortHelpView(m.keys.sidebarHelp())
	default:
		left = m.help.ShortHelpView(m.keys.ShortHelp())
	}

	right := m.st.SessionID
	if model.IsProvisionalSessionID(right) {
		right = "unsaved"
	}
	right = util.TruncateWidth(right, 24)
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
