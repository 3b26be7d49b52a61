// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options are the streams and arguments of one invocation. Zero values
// select the process's own.
type Options struct {
	Version string
	Args    []string // nil uses os.Args[1:]
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

func (o Options) withDefaults() Options {
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the command tree. The returned App must be closed
// after the command has run.
func NewRootCommand(opts Options) (*cobra.Command, *App) {
	opts = opts.withDefaults()
	app := &App{opts: opts}

	root := &cobra.Command{
		Use:   "kbchat",
		Short: "Chat with a knowledge base from the terminal",
		Long: `kbchat is a terminal client for a retrieval-augmented chat service.

With no subcommand it opens the full-screen chat view: a session list on
the left, the conversation on the right, and an input line at the bottom.
Answers stream in token by token and cite the documents they were drawn
from.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureColors(colorProfile(cmd.OutOrStdout(), app.flags.noColor))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, app)
		},
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	if opts.Args != nil {
		root.SetArgs(opts.Args)
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default $KBCHAT_CONFIG or ~/.kbchat/config.toml)")
	pf.StringVar(&app.flags.apiURL, "api-url", "", "backend base URL (overrides api.base_url)")
	pf.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&app.flags.json, "json", false, "write machine-readable JSON to stdout")
	pf.BoolVar(&app.flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		askCmd(app),
		chatCmd(app),
		sessionsCmd(app),
		llmCmd(app),
		embeddingCmd(app),
		kbCmd(app),
		loginCmd(app),
		logoutCmd(app),
		configCmd(app),
		healthCmd(app),
		versionCmd(app),
	)
	return root, app
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, opts Options) int {
	root, app := NewRootCommand(opts)
	defer app.Close()

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitSuccess
	}
	if cmd == nil {
		cmd = root
	}
	if app.flags.json {
		_ = NewJSONErrorResponse(cmd.CommandPath(), err).Write(root.OutOrStdout())
	} else {
		reportError(root.ErrOrStderr(), err)
	}
	app.Logger().Debug("command failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
	return exitCode(err)
}

// =============================================================================
// VERSION / HEALTH
// =============================================================================

func versionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": app.opts.Version,
				"go":      runtime.Version(),
				"os":      runtime.GOOS,
				"arch":    runtime.GOARCH,
			}
			return app.emit(cmd, info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "kbchat %s (%s %s/%s)\n", info["version"], info["go"], info["os"], info["arch"])
				return err
			})
		},
	}
}

func healthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the chat service and its database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			err = app.emit(cmd, h, func(w io.Writer) error {
				fmt.Fprintln(w, RenderStatus(h.Status), "chat service at", client.BaseURL())
				if h.Error != "" {
					fmt.Fprintln(w, "  "+RenderField("error:", h.Error))
				}
				if h.Timestamp != "" {
					fmt.Fprintln(w, "  "+RenderField("checked:", h.Timestamp))
				}
				return nil
			})
			if err == nil && !h.Healthy() {
				err = fmt.Errorf("backend reports status %q", h.Status)
			}
			return err
		},
	}
}
