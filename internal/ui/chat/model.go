// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
package chat

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/state"
	"github.com/jeranaias/kbchat/internal/ui/components"
	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// StateSource is the session store as seen by the view.
type StateSource interface {
	Snapshot() model.ChatState
	Subscribe(fn state.Listener) (unsubscribe func())
}

// Conversation runs chat turns. *chat.Controller implements it.
type Conversation interface {
	Send(ctx context.Context, text string) error
	Cancel()
	Active() bool
}

// SessionOps are the session operations reachable from the view.
// *session.Orchestrator implements it.
type SessionOps interface {
	Refresh(ctx context.Context) error
	Select(ctx context.Context, id string) error
	NewChat(ctx context.Context) error
	Rename(ctx context.Context, id, title string) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string) ([]model.Session, error)
}

// Bookmarks remembers the last opened session across runs.
// *storage.Store implements it.
type Bookmarks interface {
	LastSession(ctx context.Context) (string, bool)
	SetLastSession(ctx context.Context, id string) error
}

// Config holds the view's collaborators and options.
type Config struct {
	Store     StateSource
	Chat      Conversation
	Sessions  SessionOps
	Notes     *notify.Channel
	Bookmarks Bookmarks // optional
	Theme     *styles.Theme
	Logger    *zap.Logger

	Markdown     bool
	ShowSources  bool
	SidebarWidth int // 0 hides the sidebar
	ExportDir    string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// inputMode selects what Enter does with the input line.
type inputMode int

const (
	modeChat inputMode = iota
	modeRename
)

// Model is the Bubble Tea model for the chat view.
type Model struct {
	cfg    Config
	theme  *styles.Theme
	keys   KeyMap
	logger *zap.Logger

	// Lifetime of background work started from the view
	ctx    context.Context
	cancel context.CancelFunc

	// State feed
	states      chan model.ChatState
	unsubscribe func()
	st          model.ChatState
	lastSaved   string

	// Dimensions
	width  int
	height int

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	sidebar  *components.Sidebar
	toasts   *components.ToastStack
	renderer *markdownRenderer

	// View state
	mode          inputMode
	renameID      string
	pendingDelete string
	search        *SearchResultMsg
	showHelp      bool
	ticking       bool
	followTail    bool
}

// New creates the chat view and subscribes it to the store.
func New(cfg Config) *Model {
	if cfg.Theme == nil {
		cfg.Theme = styles.NewTheme("auto")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Notes == nil {
		cfg.Notes = notify.NewChannel(16)
	}

	ti := textinput.New()
	ti.Placeholder = "Ask the knowledge base..."
	ti.Prompt = cfg.Theme.InputPrompt.Render("> ")
	ti.CharLimit = 8000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cfg.Theme.AssistantLabel

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		cfg:        cfg,
		theme:      cfg.Theme,
		keys:       DefaultKeyMap(),
		logger:     cfg.Logger.Named("tui"),
		ctx:        ctx,
		cancel:     cancel,
		states:     make(chan model.ChatState, 1),
		viewport:   viewport.New(0, 0),
		input:      ti,
		spinner:    sp,
		help:       help.New(),
		sidebar:    components.NewSidebar(cfg.SidebarWidth),
		toasts:     components.NewToastStack(),
		renderer:   newMarkdownRenderer(cfg.Theme.GlamourStyle(), cfg.Markdown),
		followTail: true,
	}
	m.st = cfg.Store.Snapshot()
	m.sidebar.Sync(m.st)

	var mu sync.Mutex
	m.unsubscribe = cfg.Store.Subscribe(func(st model.ChatState) {
		// Latest snapshot wins; a slow view skips intermediate states.
		mu.Lock()
		defer mu.Unlock()
		select {
		case m.states <- st:
		default:
			select {
			case <-m.states:
			default:
			}
			m.states <- st
		}
	})
	return m
}

// Close stops background work and detaches from the store.
func (m *Model) Close() {
	m.unsubscribe()
	m.cancel()
}

// Init starts the feeds, loads the session list and reopens the last
// session.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.waitForState(),
		m.waitForNote(),
		m.run("refresh", m.cfg.Sessions.Refresh),
	}
	if m.cfg.Bookmarks != nil {
		if id, ok := m.cfg.Bookmarks.LastSession(m.ctx); ok {
			m.lastSaved = id
			cmds = append(cmds, m.run("select", func(ctx context.Context) error {
				return m.cfg.Sessions.Select(ctx, id)
			}))
		}
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// COMMAND CREATORS
// =============================================================================

func (m *Model) waitForState() tea.Cmd {
	ch := m.states
	done := m.ctx.Done()
	return func() tea.Msg {
		select {
		case st := <-ch:
			return StateMsg{State: st}
		case <-done:
			return feedClosedMsg{}
		}
	}
}

func (m *Model) waitForNote() tea.Cmd {
	ch := m.cfg.Notes.C()
	done := m.ctx.Done()
	return func() tea.Msg {
		select {
		case n := <-ch:
			return NotifyMsg{Note: n}
		case <-done:
			return feedClosedMsg{}
		}
	}
}

// run executes fn off the update loop under the view's lifetime.
func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: op, Err: fn(ctx)}
	}
}

func (m *Model) tickToasts() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return components.ToastTickCmd()
}
