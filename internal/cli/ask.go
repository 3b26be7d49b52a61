// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// askResult is the --json payload of ask.
type askResult struct {
	SessionID string                 `json:"session_id"`
	Response  string                 `json:"response"`
	Sources   []model.SourceDocument `json:"source_documents,omitempty"`
}

func askCmd(app *App) *cobra.Command {
	var (
		sessionID string
		useWS     bool
		blocking  bool
		noSources bool
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "ask [flags] <message>",
		Short: "Ask one question and print the answer",
		Long: `Ask sends one message and prints the answer as it streams in.

Without --session the question starts a new session. --sync waits for the
complete answer instead of streaming, and --ws sends it over the WebSocket
endpoint. On a terminal the finished answer is rendered as Markdown unless
--raw is given.`,
		Example: `  kbchat ask "how do I rotate the API key?"
  kbchat ask --session 3f2a... "and for the staging cluster?"
  echo "summarize the release notes" | xargs kbchat ask --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return usagef("message must not be empty")
			}
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			out := cmd.OutOrStdout()
			width := terminalWidth(out)

			if useWS {
				client, err := app.Client()
				if err != nil {
					return err
				}
				resp, err := client.SendOverWebSocket(ctx, cfg.API.WSClientID, api.ChatRequest{Message: text, SessionID: sessionID})
				if err != nil {
					return err
				}
				res := askResult{SessionID: resp.SessionID, Response: resp.Response, Sources: resp.SourceDocuments}
				return app.emit(cmd, res, func(w io.Writer) error {
					fmt.Fprint(w, formatAnswer(res.Response, !raw && isTerminal(w) && cfg.UI.Markdown, cfg.UI.Theme, width))
					if !noSources {
						writeSources(w, res.Sources, width)
					}
					return nil
				})
			}

			conv, err := app.conversation(notify.Nop{})
			if err != nil {
				return err
			}
			defer conv.close(ctx)

			if sessionID != "" {
				if err := conv.sessions.Select(ctx, sessionID); err != nil {
					return err
				}
			}

			// Stream raw text unless the answer is rendered at the end.
			render := !raw && !app.flags.json && isTerminal(out) && cfg.UI.Markdown
			var live io.Writer
			if !app.flags.json && !render {
				live = out
			}

			reply, err := conv.ask(ctx, text, blocking, live)
			if err != nil {
				return err
			}
			res := askResult{
				SessionID: conv.store.Snapshot().SessionID,
				Response:  reply.Content,
				Sources:   reply.SourceDocuments,
			}
			return app.emit(cmd, res, func(w io.Writer) error {
				if render {
					fmt.Fprint(w, formatAnswer(res.Response, true, cfg.UI.Theme, width))
				}
				if !noSources {
					writeSources(w, res.Sources, width)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	f.BoolVar(&useWS, "ws", false, "send over the WebSocket endpoint")
	f.BoolVar(&blocking, "sync", false, "wait for the complete answer instead of streaming")
	f.BoolVar(&noSources, "no-sources", false, "do not list source documents")
	f.BoolVar(&raw, "raw", false, "print the answer without Markdown rendering")
	cmd.MarkFlagsMutuallyExclusive("ws", "sync")
	return cmd
}

// formatAnswer renders content as Markdown when asked to, and otherwise
// returns it with a trailing newline.
func formatAnswer(content string, markdown bool, theme string, width int) string {
	if markdown {
		return renderMarkdown(content, styles.NewTheme(theme).GlamourStyle(), width)
	}
	return strings.TrimRight(content, "\n") + "\n"
}
