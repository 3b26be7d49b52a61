// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jeranaias/kbchat/internal/config"
)

// readToken reads a bearer token from in. A terminal gets a prompt without
// echo; anything else is read as one line.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(prompt, "Enter API token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func loginCmd(app *App) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token sent with every request",
		Long: `Login stores a bearer token in the local database (~/.kbchat/local.db).
Without --token it is read from the terminal without echo, or from stdin
when piped. KBCHAT_TOKEN, when set, takes precedence over the stored token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("token") {
				t, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				token = t
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return usagef("token must not be empty")
			}
			store, err := app.Storage()
			if err != nil {
				return err
			}
			if err := store.SetToken(token); err != nil {
				return err
			}
			if os.Getenv(config.EnvToken) != "" && !app.flags.json {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Note:"), config.EnvToken, "is set and overrides the stored token.")
			}
			return app.done(cmd, map[string]bool{"stored": true}, "Token stored")
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token value (avoid: visible in shell history)")
	return cmd
}

func logoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.Storage()
			if err != nil {
				return err
			}
			if err := store.ClearToken(); err != nil {
				return err
			}
			return app.done(cmd, map[string]bool{"stored": false}, "Token removed")
		},
	}
}
