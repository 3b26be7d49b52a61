// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/notify"
	uichat "github.com/jeranaias/kbchat/internal/ui/chat"
	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// notesBuffer bounds notifications waiting for the view.
const notesBuffer = 16

// runTUI opens the full-screen chat view.
func runTUI(cmd *cobra.Command, app *App) error {
	if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return usagef("the chat view needs a terminal; use 'kbchat ask' or 'kbchat chat' in scripts")
	}
	cfg, err := app.Config()
	if err != nil {
		return err
	}
	store, err := app.Storage()
	if err != nil {
		return err
	}
	logger := app.Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	notes := notify.NewChannel(notesBuffer)
	conv, err := app.conversation(notes)
	if err != nil {
		return err
	}

	// RELIABILITY: edits to the config file are validated before use; a
	// broken edit leaves the running view untouched.
	app.cfgStore.OnChange(func(next *config.Config) {
		logger.Info("config file changed", zap.String("theme", next.UI.Theme))
		notes.Notify(notify.Info("Configuration reloaded", "Display settings apply the next time kbchat starts."))
	})
	if err := app.cfgStore.Watch(ctx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	}

	exportDir := "."
	if dir, err := config.Dir(); err == nil {
		exportDir = filepath.Join(dir, "exports")
	}

	m := uichat.New(uichat.Config{
		Store:        conv.store,
		Chat:         conv.chat,
		Sessions:     conv.sessions,
		Notes:        notes,
		Bookmarks:    store,
		Theme:        styles.NewTheme(cfg.UI.Theme),
		Logger:       logger,
		Markdown:     cfg.UI.Markdown,
		ShowSources:  cfg.UI.ShowSources,
		SidebarWidth: cfg.UI.SidebarWidth,
		ExportDir:    exportDir,
	})
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, runErr := p.Run()

	// Give an in-flight turn a moment to settle so its message is saved.
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer stopCancel()
	conv.close(stopCtx)

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("chat view: %w", runErr)
	}
	return nil
}
