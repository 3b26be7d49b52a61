// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/export"
)

func configCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit ~/.kbchat/config.toml",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			if app.flags.json {
				safe := cfg.Clone()
				if safe.API.Token != "" {
					safe.API.Token = "[REDACTED]"
				}
				return NewJSONResponse(cmd.CommandPath(), safe).Write(cmd.OutOrStdout())
			}
			text := cfg.String()
			if colorsEnabled(cmd.OutOrStdout(), app.flags.noColor) {
				text = export.HighlightTerminal(text, "toml", cfg.UI.Theme)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.ConfigPath()
			if err != nil {
				return &ConfigError{Err: err}
			}
			return app.emit(cmd, map[string]string{"path": p}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, p)
				return err
			})
		},
	}

	get := &cobra.Command{
		Use:       "get <key>",
		Short:     "Print one setting, e.g. ui.theme",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return usagef("%v", err)
			}
			if args[0] == "api.token" && v != "" {
				v = "[REDACTED]"
			}
			return app.emit(cmd, map[string]any{args[0]: v}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, v)
				return err
			})
		},
	}

	set := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change one setting and save the file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "api.token" {
				return usagef("tokens are not stored in the config file; use 'kbchat login'")
			}
			if err := app.load(); err != nil {
				return err
			}
			if err := app.cfgStore.Set(args[0], args[1]); err != nil {
				return &ConfigError{Err: err}
			}
			return app.done(cmd, map[string]string{args[0]: args[1]}, "%s = %s", args[0], args[1])
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List the settable keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := config.Keys()
			return app.emit(cmd, list, func(w io.Writer) error {
				for _, k := range list {
					fmt.Fprintln(w, k)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(show, path, get, set, keys)
	return cmd
}
