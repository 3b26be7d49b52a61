// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the kbchat TUI.
//
// This file implements non-blocking toasts. They stack in the corner and
// auto-dismiss, so the chat stays usable while a notification is shown.
package components

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// DefaultMaxToasts bounds the visible stack.
const DefaultMaxToasts = 4

// =============================================================================
// TOAST
// =============================================================================

// Toast is one visible notification.
type Toast struct {
	ID        int
	Note      notify.Notification
	CreatedAt time.Time
}

// Expired reports whether the toast's display duration has passed at now.
func (t Toast) Expired(now time.Time) bool {
	d := t.Note.Duration
	if d <= 0 {
		d = notify.DefaultDuration
	}
	return now.Sub(t.CreatedAt) >= d
}

// =============================================================================
// TOAST STACK
// =============================================================================

// ToastStack holds the active toasts, newest first.
type ToastStack struct {
	mu        sync.Mutex
	toasts    []Toast
	nextID    int
	maxToasts int
	now       func() time.Time
}

// NewToastStack creates an empty stack.
func NewToastStack() *ToastStack {
	return &ToastStack{nextID: 1, maxToasts: DefaultMaxToasts, now: time.Now}
}

// WithClock replaces the stack's clock.
func (s *ToastStack) WithClock(now func() time.Time) *ToastStack {
	s.now = now
	return s
}

// Push adds a notification and returns its toast id. The oldest toast is
// dropped once the stack is full.
func (s *ToastStack) Push(n notify.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Toast{ID: s.nextID, Note: n, CreatedAt: s.now()}
	s.nextID++
	s.toasts = append([]Toast{t}, s.toasts...)
	if len(s.toasts) > s.maxToasts {
		s.toasts = s.toasts[:s.maxToasts]
	}
	return t.ID
}

// Dismiss removes the newest toast.
func (s *ToastStack) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toasts) > 0 {
		s.toasts = s.toasts[1:]
	}
}

// Tick drops expired toasts and reports whether any remain.
func (s *ToastStack) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	active := s.toasts[:0]
	for _, t := range s.toasts {
		if !t.Expired(now) {
			active = append(active, t)
		}
	}
	s.toasts = active
	return len(s.toasts) > 0
}

// Toasts returns a copy of the active toasts, newest first.
func (s *ToastStack) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Toast(nil), s.toasts...)
}

// Len returns the number of active toasts.
func (s *ToastStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toasts)
}

// =============================================================================
// TOAST MESSAGES
// =============================================================================

// ToastTickMsg is sent periodically to expire toasts.
type ToastTickMsg struct {
	Time time.Time
}

// ToastTickCmd returns a command that ticks toasts every 250ms.
func ToastTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return ToastTickMsg{Time: t}
	})
}

// =============================================================================
// TOAST RENDERING
// =============================================================================

// RenderToast renders a single toast no wider than width.
func RenderToast(theme *styles.Theme, t Toast, width int) string {
	maxWidth := min(60, width-4)
	if maxWidth < 20 {
		maxWidth = 20
	}

	var badge lipgloss.Style
	var icon string
	var border lipgloss.AdaptiveColor
	switch t.Note.Kind {
	case notify.KindError:
		badge, icon, border = theme.ToastError, styles.StatusIndicators.Error, styles.Rose
	case notify.KindWarning:
		badge, icon, border = theme.ToastWarning, styles.StatusIndicators.Warning, styles.Amber
	case notify.KindSuccess:
		badge, icon, border = theme.ToastSuccess, styles.StatusIndicators.Success, styles.Emerald
	default:
		badge, icon, border = theme.ToastInfo, styles.StatusIndicators.Info, styles.Cyan
	}

	head := badge.Render(icon)
	if title := strings.TrimSpace(t.Note.Title); title != "" {
		head += " " + lipgloss.NewStyle().Bold(true).Render(title)
	}
	body := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 4).
		Render(t.Note.Message)

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(head + "\n" + body)
}

// RenderToastStack renders toasts right-aligned, newest at the bottom.
func RenderToastStack(theme *styles.Theme, toasts []Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for i := len(toasts) - 1; i >= 0; i-- {
		rendered = append(rendered, RenderToast(theme, toasts[i], width))
	}
	stack := lipgloss.JoinVertical(lipgloss.Right, rendered...)
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, stack)
}
