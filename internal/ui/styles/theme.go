// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the kbchat TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	Muted       lipgloss.Style
	Error       lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style
	MessageBody    lipgloss.Style
	Placeholder    lipgloss.Style
	Sources        lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarCursor   lipgloss.Style
	SidebarInactive lipgloss.Style

	// ==========================================================================
	// INPUT & TOASTS
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	ToastInfo    lipgloss.Style
	ToastSuccess lipgloss.Style
	ToastWarning lipgloss.Style
	ToastError   lipgloss.Style
}

// NewTheme builds the theme named by ui.theme: "dark", "light" or "auto".
// "auto" asks the terminal for its background.
func NewTheme(name string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch name {
	case "light":
		isDark = false
	case "dark":
		isDark = true
	default:
		name = "auto"
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{Name: name, IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Placeholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)
	t.Sources = lipgloss.NewStyle().Foreground(TextSecondary).PaddingLeft(2)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)
	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary).MarginBottom(1)
	t.SidebarItem = lipgloss.NewStyle().Foreground(TextPrimary)
	// ACCESSIBILITY: Bold plus background so selection survives monochrome
	t.SidebarSelected = lipgloss.NewStyle().Bold(true).Foreground(TextPrimary).Background(SelectionBg)
	t.SidebarCursor = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.SidebarInactive = lipgloss.NewStyle().Foreground(TextMuted).Strikethrough(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

	toast := lipgloss.NewStyle().
		Foreground(TextInverse).
		Bold(true).
		Padding(0, 1)
	t.ToastInfo = toast.Background(Cyan)
	t.ToastSuccess = toast.Background(Emerald)
	t.ToastWarning = toast.Background(Amber)
	t.ToastError = toast.Background(Rose)
}
