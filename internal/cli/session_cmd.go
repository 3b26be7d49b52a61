// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/export"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// SESSIONS COMMAND
// =============================================================================

func sessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "List and manage chat sessions",
	}
	cmd.AddCommand(
		sessionsListCmd(app),
		sessionsShowCmd(app),
		sessionsHistoryCmd(app),
		sessionsCreateCmd(app),
		sessionsRenameCmd(app),
		sessionsActiveCmd(app, "activate", true),
		sessionsActiveCmd(app, "deactivate", false),
		sessionsDeleteCmd(app),
		sessionsDeleteAllCmd(app),
		sessionsClearCmd(app),
		sessionsSearchCmd(app),
		sessionsExportCmd(app),
		sessionsCleanupCmd(app),
	)
	return cmd
}

// relTime formats t relative to now, or "-" when unknown.
func relTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// parseTime returns the zero time for empty or malformed stamps.
func parseTime(s string) time.Time {
	t, err := model.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sessionRows formats sessions for renderTable.
func sessionRows(sessions []model.Session) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		count := "-"
		if s.MessageCount != nil {
			count = humanize.Comma(int64(*s.MessageCount))
		}
		status := "active"
		if !s.IsActive {
			status = "inactive"
		}
		rows = append(rows, []string{
			s.SessionID,
			util.TruncateWidth(s.DisplayTitle(), 40),
			count,
			relTime(s.Updated()),
			status,
		})
	}
	return rows
}

func writeSessions(w io.Writer, sessions []model.Session, total int) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, DimStyle.Render("No sessions found."))
		return err
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "TITLE", "MSGS", "UPDATED", "STATUS"}, sessionRows(sessions)))
	if total > len(sessions) {
		fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("Showing %d of %s sessions.", len(sessions), humanize.Comma(int64(total)))))
	}
	return nil
}

func sessionsListCmd(app *App) *cobra.Command {
	var (
		all    bool
		limit  int
		offset int
		userID string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			opts := api.ListOptions{UserID: cfg.API.UserID, Limit: limit, Offset: offset}
			if userID != "" {
				opts.UserID = userID
			}
			if all {
				activeOnly := false
				opts.ActiveOnly = &activeOnly
			}
			list, err := client.ListSessions(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return app.emit(cmd, list, func(w io.Writer) error {
				return writeSessions(w, list.Sessions, list.TotalCount)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&all, "all", "a", false, "include inactive sessions")
	f.IntVarP(&limit, "limit", "n", 50, "maximum number of sessions")
	f.IntVar(&offset, "offset", 0, "number of sessions to skip")
	f.StringVar(&userID, "user", "", "only sessions of this user (overrides api.user_id)")
	return cmd
}

func sessionsShowCmd(app *App) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			full, err := client.GetSessionFull(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, full, func(w io.Writer) error {
				width := terminalWidth(w)
				markdown := !raw && cfg.UI.Markdown && isTerminal(w)
				s := full.Session
				fmt.Fprintln(w, TitleStyle.Render(s.DisplayTitle()))
				fmt.Fprintln(w, RenderField("Session:", s.SessionID))
				fmt.Fprintln(w, RenderField("Created:", relTime(parseTime(s.CreatedAt))))
				fmt.Fprintln(w, RenderField("Updated:", relTime(s.Updated())))
				fmt.Fprintln(w, RenderField("Messages:", humanize.Comma(int64(len(full.Messages)))))
				for _, m := range full.ChatMessages() {
					fmt.Fprintln(w)
					writeMessage(w, m, markdown, cfg.UI.Theme, width)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print answers without Markdown rendering")
	return cmd
}

// writeMessage prints one transcript entry with its role label.
func writeMessage(w io.Writer, m model.Message, markdown bool, theme string, width int) {
	label := UserStyle.Render(m.Role.DisplayName())
	if m.Role == model.RoleAssistant {
		label = AssistantStyle.Render(m.Role.DisplayName())
	}
	if ts := parseTime(m.Timestamp); !ts.IsZero() {
		label += " " + DimStyle.Render(ts.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, label)
	fmt.Fprint(w, formatAnswer(m.Content, markdown && m.Role == model.RoleAssistant, theme, width))
	writeSources(w, m.SourceDocuments, width)
}

func sessionsHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's messages, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			msgs, err := client.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, msgs, func(w io.Writer) error {
				width := terminalWidth(w)
				for _, m := range msgs {
					label := util.PadRight(string(m.Role), 10)
					line := util.TruncateWidth(util.FirstLine(m.Content), width-12)
					fmt.Fprintln(w, DimStyle.Render(label), line)
				}
				return nil
			})
		},
	}
}

func sessionsCreateCmd(app *App) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(context.WithoutCancel(cmd.Context()))

			s, err := conv.sessions.Create(cmd.Context(), title)
			if err != nil {
				return err
			}
			return app.done(cmd, s, "Created session %s (%s)", s.SessionID, s.DisplayTitle())
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "session title")
	return cmd
}

func sessionsRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return usagef("title must not be empty")
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			s, err := client.UpdateSession(cmd.Context(), args[0], api.UpdateSessionRequest{Title: &title})
			if err != nil {
				return err
			}
			return app.done(cmd, s, "Renamed %s to %q", args[0], title)
		},
	}
}

func sessionsActiveCmd(app *App, use string, active bool) *cobra.Command {
	short := "Mark a session active"
	if !active {
		short = "Mark a session inactive, hiding it from the default list"
	}
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			s, err := client.UpdateSession(cmd.Context(), args[0], api.UpdateSessionRequest{IsActive: &active})
			if err != nil {
				return err
			}
			return app.done(cmd, s, "Session %s %sd", args[0], use)
		},
	}
}

func sessionsDeleteCmd(app *App) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:     "delete <session-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a session and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := app.confirm(cmd, confirmed, "delete this session", map[string]string{"Session": id}); err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			if err := client.DeleteSession(cmd.Context(), id); err != nil {
				return err
			}
			return app.done(cmd, map[string]string{"session_id": id}, "Deleted session %s", id)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func sessionsDeleteAllCmd(app *App) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.confirm(cmd, confirmed, "delete ALL sessions", nil); err != nil {
				return err
			}
			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(context.WithoutCancel(cmd.Context()))

			n, err := conv.sessions.DeleteAll(cmd.Context(), true)
			if err != nil {
				return err
			}
			return app.done(cmd, map[string]int{"deleted_sessions": n}, "Deleted %s sessions", humanize.Comma(int64(n)))
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func sessionsClearCmd(app *App) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a session's messages but keep the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := app.confirm(cmd, confirmed, "clear this session's history", map[string]string{"Session": id}); err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			if err := client.ClearHistory(cmd.Context(), id); err != nil {
				return err
			}
			return app.done(cmd, map[string]string{"session_id": id}, "Cleared history of %s", id)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func sessionsSearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find sessions by title or message text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(context.WithoutCancel(cmd.Context()))

			found, err := conv.sessions.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return app.emit(cmd, found, func(w io.Writer) error {
				return writeSessions(w, found, len(found))
			})
		},
	}
}

func sessionsCleanupCmd(app *App) *cobra.Command {
	var (
		days      int
		confirmed bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions not updated for a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return usagef("--days must be at least 1")
			}
			action := fmt.Sprintf("delete sessions older than %d days", days)
			if err := app.confirm(cmd, confirmed, action, nil); err != nil {
				return err
			}
			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(context.WithoutCancel(cmd.Context()))

			res, err := conv.sessions.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			return app.done(cmd, res, "Deleted %s sessions older than %d days", humanize.Comma(int64(res.DeletedSessions)), res.DaysOld)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "age threshold in days")
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func sessionsExportCmd(app *App) *cobra.Command {
	var (
		format string
		output string
		open   bool
	)
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session",
		Long: `Export writes a session in one of these formats:

  json, csv              produced by the server
  markdown, html, text   rendered locally from the session history

Server formats go to stdout unless -o names a file. Local formats are
written into the directory named by -o (default: current directory).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			switch strings.ToLower(format) {
			case "json", "csv":
				return exportRemote(cmd, app, id, format, output)
			case "markdown", "md", "html", "htm", "text", "txt":
				return exportLocal(cmd, app, id, format, output, open)
			default:
				return usagef("unsupported export format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json, csv, markdown, html or text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (server formats) or directory (local formats)")
	cmd.Flags().BoolVar(&open, "open", false, "open local exports in the default application")
	return cmd
}

func exportRemote(cmd *cobra.Command, app *App, id, format, output string) error {
	f, err := api.ParseExportFormat(strings.ToLower(format))
	if err != nil {
		return usagef("%v", err)
	}
	conv, err := app.conversation(notify.Nop{})
	if err != nil {
		return err
	}
	defer conv.close(context.WithoutCancel(cmd.Context()))

	exp, err := conv.sessions.Export(cmd.Context(), id, f)
	if err != nil {
		return err
	}

	var data []byte
	if text, ok := exp.CSV(); ok {
		data = []byte(text)
	} else {
		var buf bytes.Buffer
		if err := json.Indent(&buf, exp.Raw, "", "  "); err != nil {
			buf.Reset()
			buf.Write(exp.Raw)
		}
		buf.WriteByte('\n')
		data = buf.Bytes()
	}

	if output == "" || output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := util.AtomicWriteFile(output, data, 0600); err != nil {
		return err
	}
	return app.done(cmd, map[string]string{"path": output, "format": string(f)},
		"Exported %s to %s (%s)", id, output, humanize.Bytes(uint64(len(data))))
}

func exportLocal(cmd *cobra.Command, app *App, id, format, output string, open bool) error {
	client, err := app.Client()
	if err != nil {
		return err
	}
	cfg, err := app.Config()
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.Theme = cfg.UI.Theme
	opts.IncludeSources = cfg.UI.ShowSources
	opts.OpenAfterExport = open
	if output != "" {
		if info, err := os.Stat(output); err == nil && !info.IsDir() {
			return usagef("%s is a file; local formats take an output directory", output)
		}
		opts.OutputDir = output
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return usagef("%v", err)
	}
	full, err := client.GetSessionFull(cmd.Context(), id)
	if err != nil {
		return err
	}

	t := &export.Transcript{Session: full.Session, Messages: full.ChatMessages()}
	if t.Session.SessionID == "" {
		t.Session.SessionID = id
	}
	path, err := export.ToFile(t, exporter, opts)
	if err != nil && path == "" {
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning:"), err)
	}
	return app.done(cmd, map[string]string{"path": path, "format": format},
		"Exported %s to %s (%d messages)", id, path, len(t.Messages))
}
