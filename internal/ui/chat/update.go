// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/components"
)

// Update handles messages and returns the updated model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshViewport()

	case StateMsg:
		cmds = append(cmds, m.applyState(msg.State), m.waitForState())

	case NotifyMsg:
		m.toasts.Push(msg.Note)
		m.layout()
		cmds = append(cmds, m.waitForNote(), m.tickToasts())

	case components.ToastTickMsg:
		m.ticking = false
		if m.toasts.Tick() {
			cmds = append(cmds, m.tickToasts())
		}
		m.layout()

	case SearchResultMsg:
		m.search = &msg
		m.syncSidebar()
		m.focusSidebar(true)
		m.layout()

	case OpDoneMsg:
		if msg.Err != nil && !api.IsCancellation(msg.Err) {
			m.logger.Debug("operation failed", zap.String("op", msg.Op), zap.Error(msg.Err))
		}

	case spinner.TickMsg:
		if m.st.IsLoading || m.st.IsSessionsLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case feedClosedMsg:
		return m, nil

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		if handled {
			return m, cmd
		}
		cmds = append(cmds, cmd)
	}

	if !m.sidebar.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// applyState renders a new snapshot.
func (m *Model) applyState(st model.ChatState) tea.Cmd {
	wasBusy := m.st.IsLoading || m.st.IsSessionsLoading
	m.st = st
	m.syncSidebar()
	m.layout()
	m.refreshViewport()
	m.saveBookmark()

	if !wasBusy && (st.IsLoading || st.IsSessionsLoading) {
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) syncSidebar() {
	st := m.st
	if m.search != nil {
		st.Sessions = m.search.Sessions
	}
	m.sidebar.Sync(st)
}

// saveBookmark remembers the selected session for the next run.
func (m *Model) saveBookmark() {
	if m.cfg.Bookmarks == nil || m.st.SelectedSession == nil {
		return
	}
	id := m.st.SelectedSession.SessionID
	if id == m.lastSaved || model.IsProvisionalSessionID(id) {
		return
	}
	if err := m.cfg.Bookmarks.SetLastSession(m.ctx, id); err != nil {
		m.logger.Warn("failed to remember session", zap.Error(err))
		return
	}
	m.lastSaved = id
}

// =============================================================================
// KEY HANDLING
// =============================================================================

// handleKey processes a key. handled reports that the input line must not
// see the key.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.cfg.Chat.Cancel()
		return tea.Quit, true

	case key.Matches(msg, k.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return nil, true

	case key.Matches(msg, k.Focus):
		if m.cfg.SidebarWidth > 0 {
			m.focusSidebar(!m.sidebar.Focused())
		}
		return nil, true

	case key.Matches(msg, k.NewChat):
		m.exitSearch()
		return m.run("new chat", m.cfg.Sessions.NewChat), true

	case key.Matches(msg, k.Refresh):
		return m.run("refresh", m.cfg.Sessions.Refresh), true

	case key.Matches(msg, k.PageUp):
		m.viewport.HalfViewUp()
		m.followTail = m.viewport.AtBottom()
		return nil, true

	case key.Matches(msg, k.PageDown):
		m.viewport.HalfViewDown()
		m.followTail = m.viewport.AtBottom()
		return nil, true
	}

	if m.sidebar.Focused() {
		return m.handleSidebarKey(msg), true
	}

	switch {
	case key.Matches(msg, k.Cancel):
		if m.mode == modeRename {
			m.endRename()
			return nil, true
		}
		if m.cfg.Chat.Active() {
			m.cfg.Chat.Cancel()
			return nil, true
		}
		m.toasts.Dismiss()
		m.layout()
		return nil, true

	case key.Matches(msg, k.Submit):
		return m.submit(), true
	}
	return nil, false
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) tea.Cmd {
	k := m.keys
	deleteArmed := m.pendingDelete
	m.pendingDelete = ""

	cur, ok := m.sidebar.Cursor()
	switch {
	case key.Matches(msg, k.Cancel):
		if m.search != nil {
			m.exitSearch()
			return nil
		}
		m.focusSidebar(false)

	case key.Matches(msg, k.Up):
		m.sidebar.Up()

	case key.Matches(msg, k.Down):
		m.sidebar.Down()

	case key.Matches(msg, k.Open) && ok:
		m.exitSearch()
		m.focusSidebar(false)
		id := cur.SessionID
		return m.run("select", func(ctx context.Context) error {
			return m.cfg.Sessions.Select(ctx, id)
		})

	case key.Matches(msg, k.Rename) && ok:
		m.beginRename(cur)

	case key.Matches(msg, k.Toggle) && ok:
		id, active := cur.SessionID, !cur.IsActive
		return m.run("set active", func(ctx context.Context) error {
			return m.cfg.Sessions.SetActive(ctx, id, active)
		})

	case key.Matches(msg, k.Delete) && ok:
		// Destructive: the key must be pressed twice on the same session.
		if deleteArmed != cur.SessionID {
			m.pendingDelete = cur.SessionID
			return nil
		}
		id := cur.SessionID
		return m.run("delete", func(ctx context.Context) error {
			return m.cfg.Sessions.Delete(ctx, id)
		})
	}
	return nil
}

func (m *Model) focusSidebar(v bool) {
	if m.cfg.SidebarWidth <= 0 {
		v = false
	}
	m.sidebar.SetFocused(v)
	if v {
		m.input.Blur()
	} else {
		m.pendingDelete = ""
		m.input.Focus()
	}
}

func (m *Model) exitSearch() {
	if m.search == nil {
		return
	}
	m.search = nil
	m.syncSidebar()
}

func (m *Model) beginRename(s model.Session) {
	m.mode = modeRename
	m.renameID = s.SessionID
	m.focusSidebar(false)
	m.input.SetValue(s.Title)
	m.input.CursorEnd()
	m.input.Placeholder = "New title"
}

func (m *Model) endRename() {
	m.mode = modeChat
	m.renameID = ""
	m.input.Reset()
	m.input.Placeholder = "Ask the knowledge base..."
}

// submit acts on the input line.
func (m *Model) submit() tea.Cmd {
	text := m.input.Value()

	if m.mode == modeRename {
		id, title := m.renameID, strings.TrimSpace(text)
		m.endRename()
		return m.run("rename", func(ctx context.Context) error {
			return m.cfg.Sessions.Rename(ctx, id, title)
		})
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.input.Reset()

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return m.command(strings.TrimSpace(text))
	}

	m.followTail = true
	return m.run("send", func(ctx context.Context) error {
		return m.cfg.Chat.Send(ctx, text)
	})
}
