// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of input per prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader provides line editing and persistent history on a terminal.
// USABILITY: Supports arrow keys for history navigation and line editing.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	r := &linerReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads piped input. Prompts are not echoed.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// CHAT REPL
// =============================================================================

// replHelp lists the REPL commands.
const replHelp = `Commands:
  /new              start a new chat
  /sessions         list recent sessions
  /open <id>        continue a session
  /rename <title>   rename the current session
  /sources          list the sources of the last answer
  /help             show this help
  /quit             leave (also Ctrl+D)`

type repl struct {
	app  *App
	conv *conversation
	in   lineReader
	out  io.Writer
	errw io.Writer

	blocking bool
	width    int
	last     model.Message
}

func chatCmd(app *App) *cobra.Command {
	var (
		sessionID string
		blocking  bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in a line-oriented REPL",
		Long: `Chat starts a read-eval-print loop against the backend. Answers stream
as plain text, which suits terminals where the full-screen view is not
wanted. Ctrl+C cancels the answer in progress; Ctrl+D leaves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(context.WithoutCancel(ctx))

			r := &repl{
				app:      app,
				conv:     conv,
				out:      cmd.OutOrStdout(),
				errw:     cmd.ErrOrStderr(),
				blocking: blocking,
				width:    terminalWidth(cmd.OutOrStdout()),
			}
			if isTerminal(cmd.InOrStdin()) {
				r.in = newLinerReader(historyPath())
			} else {
				r.in = &scanReader{scanner: bufio.NewScanner(cmd.InOrStdin())}
			}
			defer r.in.Close()

			if sessionID != "" {
				if err := conv.sessions.Select(ctx, sessionID); err != nil {
					return err
				}
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().BoolVar(&blocking, "sync", false, "wait for complete answers instead of streaming")
	return cmd
}

// historyPath is ~/.kbchat/chat_history, or a temp file when the home
// directory is unknown.
func historyPath() string {
	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, TitleStyle.Render("kbchat"))
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, /quit to leave."))

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := r.in.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				reportError(r.errw, err)
			}
			if quit {
				return nil
			}
			continue
		}
		r.turn(ctx, input)
	}
}

// turn sends one message. Ctrl+C cancels only this turn.
func (r *repl) turn(parent context.Context, text string) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	fmt.Fprint(r.out, AssistantStyle.Render("kb> "))
	reply, err := r.conv.ask(ctx, text, r.blocking, r.out)
	r.last = reply
	switch {
	case err == nil:
	case api.IsCancellation(err):
		fmt.Fprintln(r.errw, WarningStyle.Render("[Cancelled]"))
	default:
		r.app.Logger().Debug("chat turn failed", zap.Error(err))
		reportError(r.errw, err)
	}
}

// command runs a slash command and reports whether the REPL should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		fmt.Fprintln(r.out, replHelp)

	case "/new":
		if err := r.conv.sessions.NewChat(ctx); err != nil {
			return false, err
		}
		r.last = model.Message{}
		fmt.Fprintln(r.out, DimStyle.Render("Started a new chat."))

	case "/sessions", "/ls":
		if err := r.conv.sessions.Refresh(ctx); err != nil {
			return false, err
		}
		st := r.conv.store.Snapshot()
		if len(st.Sessions) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("No sessions yet."))
			return false, nil
		}
		for _, s := range st.Sessions {
			marker := "  "
			if s.SessionID == st.SessionID {
				marker = "* "
			}
			fmt.Fprintf(r.out, "%s%s  %s  %s\n", marker, DimStyle.Render(s.SessionID), s.DisplayTitle(),
				DimStyle.Render(relTime(s.Updated())))
		}

	case "/open":
		if arg == "" {
			return false, usagef("usage: /open <session-id>")
		}
		if err := r.conv.sessions.Select(ctx, arg); err != nil {
			return false, err
		}
		st := r.conv.store.Snapshot()
		title := model.DefaultSessionTitle
		if st.SelectedSession != nil {
			title = st.SelectedSession.DisplayTitle()
		}
		fmt.Fprintf(r.out, "%s %s (%s messages)\n", SuccessStyle.Render("Opened"), title, humanize.Comma(int64(len(st.Messages))))

	case "/rename":
		if arg == "" {
			return false, usagef("usage: /rename <title>")
		}
		st := r.conv.store.Snapshot()
		if model.IsProvisionalSessionID(st.SessionID) {
			return false, usagef("nothing to rename: send a message first")
		}
		if err := r.conv.sessions.Rename(ctx, st.SessionID, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Renamed to"), arg)

	case "/sources":
		if len(r.last.SourceDocuments) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("The last answer cited no sources."))
			return false, nil
		}
		writeSources(r.out, r.last.SourceDocuments, r.width)

	default:
		return false, usagef("unknown command %s (try /help)", name)
	}
	return false, nil
}
