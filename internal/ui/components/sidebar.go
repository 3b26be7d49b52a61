// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the kbchat TUI.
package components

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// SESSION SIDEBAR
// =============================================================================

// Sidebar lists sessions with a movable cursor. The highlighted row follows
// the store's selected session; the cursor is local to the view.
type Sidebar struct {
	sessions []model.Session
	selected string
	cursor   int
	offset   int
	loading  bool
	focused  bool

	width  int
	height int
	now    func() time.Time
}

// NewSidebar creates an empty sidebar of the given width.
func NewSidebar(width int) *Sidebar {
	return &Sidebar{width: width, now: time.Now}
}

// SetSize sets the sidebar's outer dimensions.
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.clampOffset()
}

// Width returns the configured width.
func (s *Sidebar) Width() int {
	return s.width
}

// SetFocused marks the sidebar as receiving keys.
func (s *Sidebar) SetFocused(v bool) {
	s.focused = v
}

// Focused reports whether the sidebar receives keys.
func (s *Sidebar) Focused() bool {
	return s.focused
}

// Sync replaces the list from a state snapshot. The cursor stays on the same
// session when it still exists.
func (s *Sidebar) Sync(st model.ChatState) {
	var cursorID string
	if c, ok := s.Cursor(); ok {
		cursorID = c.SessionID
	}

	s.sessions = st.Sessions
	s.selected = ""
	if st.SelectedSession != nil {
		s.selected = st.SelectedSession.SessionID
	}
	s.loading = st.IsSessionsLoading

	switch {
	case cursorID != "" && model.IndexOfSession(s.sessions, cursorID) >= 0:
		s.cursor = model.IndexOfSession(s.sessions, cursorID)
	case s.selected != "" && model.IndexOfSession(s.sessions, s.selected) >= 0:
		s.cursor = model.IndexOfSession(s.sessions, s.selected)
	default:
		s.cursor = min(s.cursor, max(len(s.sessions)-1, 0))
	}
	s.clampOffset()
}

// Cursor returns the session under the cursor.
func (s *Sidebar) Cursor() (model.Session, bool) {
	if s.cursor < 0 || s.cursor >= len(s.sessions) {
		return model.Session{}, false
	}
	return s.sessions[s.cursor], true
}

// MoveTo puts the cursor on the session with id, if listed.
func (s *Sidebar) MoveTo(id string) bool {
	i := model.IndexOfSession(s.sessions, id)
	if i < 0 {
		return false
	}
	s.cursor = i
	s.clampOffset()
	return true
}

// Up moves the cursor up one row.
func (s *Sidebar) Up() {
	if s.cursor > 0 {
		s.cursor--
		s.clampOffset()
	}
}

// Down moves the cursor down one row.
func (s *Sidebar) Down() {
	if s.cursor < len(s.sessions)-1 {
		s.cursor++
		s.clampOffset()
	}
}

// rows is the number of session rows that fit below the title.
func (s *Sidebar) rows() int {
	// Each session takes two lines; the title takes two.
	return max((s.height-2)/2, 1)
}

func (s *Sidebar) clampOffset() {
	rows := s.rows()
	if s.cursor < s.offset {
		s.offset = s.cursor
	}
	if s.cursor >= s.offset+rows {
		s.offset = s.cursor - rows + 1
	}
	s.offset = max(s.offset, 0)
}

// View renders the sidebar.
func (s *Sidebar) View(theme *styles.Theme) string {
	inner := max(s.width-2, 8)

	var b strings.Builder
	title := "Sessions"
	if s.loading {
		title += " ..."
	}
	b.WriteString(theme.SidebarTitle.Render(title))
	b.WriteString("\n")

	if len(s.sessions) == 0 {
		b.WriteString(theme.Muted.Render(util.TruncateWidth("No sessions yet", inner)))
		return theme.Sidebar.Width(s.width).Height(s.height).Render(b.String())
	}

	end := min(s.offset+s.rows(), len(s.sessions))
	for i := s.offset; i < end; i++ {
		sess := s.sessions[i]

		marker := "  "
		if s.focused && i == s.cursor {
			marker = theme.SidebarCursor.Render("> ")
		}
		label := util.PadRight(sess.DisplayTitle(), inner-2)

		style := theme.SidebarItem
		switch {
		case sess.SessionID == s.selected:
			style = theme.SidebarSelected
		case !sess.IsActive:
			style = theme.SidebarInactive
		}
		b.WriteString(marker + style.Render(label) + "\n")
		b.WriteString("  " + theme.Muted.Render(util.TruncateWidth(s.subtitle(sess), inner-2)) + "\n")
	}
	return theme.Sidebar.Width(s.width).Height(s.height).Render(strings.TrimRight(b.String(), "\n"))
}

// subtitle is "<relative time> · <n> msgs".
func (s *Sidebar) subtitle(sess model.Session) string {
	var parts []string
	if t := sess.Updated(); !t.IsZero() {
		parts = append(parts, humanize.RelTime(t, s.now(), "ago", "from now"))
	}
	if sess.MessageCount != nil {
		parts = append(parts, humanize.Comma(int64(*sess.MessageCount))+" msgs")
	}
	return strings.Join(parts, " · ")
}
