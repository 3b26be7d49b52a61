// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
//
// This file implements the slash commands typed into the input line.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/export"
	"github.com/jeranaias/kbchat/internal/notify"
)

// Command describes one slash command.
type Command struct {
	Name        string
	Args        string
	Description string
}

// Commands lists the slash commands in help order.
var Commands = []Command{
	{"/new", "", "Start a new chat"},
	{"/rename", "<title>", "Rename the current session"},
	{"/delete", "", "Delete the current session"},
	{"/refresh", "", "Reload the session list"},
	{"/search", "<query>", "Search sessions"},
	{"/export", "[md|html|json|txt]", "Export the conversation to a file"},
	{"/help", "", "Show commands"},
	{"/quit", "", "Exit kbchat"},
}

// command runs a slash command line.
func (m *Model) command(line string) tea.Cmd {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	current := m.st.SelectedSession

	switch strings.ToLower(name) {
	case "/new":
		m.exitSearch()
		return m.run("new chat", m.cfg.Sessions.NewChat)

	case "/rename":
		if current == nil {
			return m.note(notify.Warning("Rename", "Open a saved session first."))
		}
		id := current.SessionID
		return m.run("rename", func(ctx context.Context) error {
			return m.cfg.Sessions.Rename(ctx, id, arg)
		})

	case "/delete":
		if current == nil {
			return m.note(notify.Warning("Delete", "Open a saved session first."))
		}
		// Arms the sidebar's delete; one more "d" confirms.
		m.exitSearch()
		m.focusSidebar(true)
		if m.sidebar.MoveTo(current.SessionID) {
			m.pendingDelete = current.SessionID
		}
		return nil

	case "/refresh":
		return m.run("refresh", m.cfg.Sessions.Refresh)

	case "/search":
		if arg == "" {
			return m.note(notify.Warning("Search", "Usage: /search <query>"))
		}
		ops := m.cfg.Sessions
		ctx := m.ctx
		return func() tea.Msg {
			found, err := ops.Search(ctx, arg)
			if err != nil {
				return OpDoneMsg{Op: "search", Err: err}
			}
			return SearchResultMsg{Query: arg, Sessions: found}
		}

	case "/export":
		return m.exportTranscript(arg)

	case "/help":
		var b strings.Builder
		for _, c := range Commands {
			fmt.Fprintf(&b, "%s %s  %s\n", c.Name, c.Args, c.Description)
		}
		return m.note(notify.Info("Commands", strings.TrimSpace(b.String())))

	case "/quit", "/exit":
		m.cfg.Chat.Cancel()
		return tea.Quit
	}
	return m.note(notify.Warning("Unknown command", name+" (try /help)"))
}

// exportTranscript writes the visible conversation to a file.
func (m *Model) exportTranscript(format string) tea.Cmd {
	transcript := export.NewTranscript(m.st)
	opts := export.DefaultOptions()
	if m.cfg.ExportDir != "" {
		opts.OutputDir = m.cfg.ExportDir
	}
	opts.Theme = "dark"
	if !m.theme.IsDark {
		opts.Theme = "light"
	}
	opts.IncludeSources = m.cfg.ShowSources

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return m.note(notify.Warning("Export", err.Error()))
	}
	notes := m.cfg.Notes
	return func() tea.Msg {
		path, err := export.ToFile(transcript, exporter, opts)
		switch {
		case errors.Is(err, export.ErrEmptyTranscript):
			notes.Notify(notify.Warning("Export", "Nothing to export yet."))
		case err != nil && path == "":
			notes.Notify(notify.Error("Export failed", err.Error()))
		default:
			notes.Notify(notify.Success("Exported", path))
		}
		return OpDoneMsg{Op: "export", Err: err}
	}
}

// note queues a notification through the same channel the core uses.
func (m *Model) note(n notify.Notification) tea.Cmd {
	m.cfg.Notes.Notify(n)
	return nil
}
