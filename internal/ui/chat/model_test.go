// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/state"
	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeChat struct {
	mu      sync.Mutex
	sent    []string
	cancels int
	active  bool
}

func (f *fakeChat) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChat) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeChat) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeSessions struct {
	mu    sync.Mutex
	calls []string
	found []model.Session
}

func (f *fakeSessions) record(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeSessions) Refresh(context.Context) error { return f.record("refresh") }
func (f *fakeSessions) Select(_ context.Context, id string) error { return f.record("select " + id) }
func (f *fakeSessions) NewChat(context.Context) error { return f.record("new") }
func (f *fakeSessions) Rename(_ context.Context, id, title string) error {
	return f.record("rename " + id + " " + title)
}
func (f *fakeSessions) SetActive(_ context.Context, id string, active bool) error {
	if active {
		return f.record("activate " + id)
	}
	return f.record("deactivate " + id)
}
func (f *fakeSessions) Delete(_ context.Context, id string) error { return f.record("delete " + id) }
func (f *fakeSessions) Search(_ context.Context, q string) ([]model.Session, error) {
	f.record("search " + q)
	return f.found, nil
}

func (f *fakeSessions) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memBookmarks struct {
	id string
}

func (b *memBookmarks) LastSession(context.Context) (string, bool) { return b.id, b.id != "" }
func (b *memBookmarks) SetLastSession(_ context.Context, id string) error {
	b.id = id
	return nil
}

type fixture struct {
	m        *Model
	store    *state.Store
	chat     *fakeChat
	sessions *fakeSessions
	marks    *memBookmarks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    state.New(state.WithSessionID("session_1")),
		chat:     &fakeChat{},
		sessions: &fakeSessions{},
		marks:    &memBookmarks{},
	}
	f.m = New(Config{
		Store:        f.store,
		Chat:         f.chat,
		Sessions:     f.sessions,
		Notes:        notify.NewChannel(8),
		Bookmarks:    f.marks,
		Theme:        styles.NewTheme("dark"),
		SidebarWidth: 24,
		ShowSources:  true,
		ExportDir:    t.TempDir(),
	})
	t.Cleanup(f.m.Close)
	f.m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return f
}

// pump delivers the latest store snapshot to the model.
func (f *fixture) pump(t *testing.T) {
	t.Helper()
	select {
	case st := <-f.m.states:
		f.m.Update(StateMsg{State: st})
	case <-time.After(time.Second):
		t.Fatal("no state delivered")
	}
}

// exec runs a command synchronously and feeds its message back.
func (f *fixture) exec(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	f.m.Update(msg)
	return msg
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func seedSessions(f *fixture) {
	f.store.Batch(func(st *model.ChatState) {
		st.Sessions = []model.Session{
			{SessionID: "a", Title: "Alpha", IsActive: true},
			{SessionID: "b", Title: "Beta", IsActive: true},
		}
	})
}

// =============================================================================
// TESTS
// =============================================================================

func TestModel_RendersStateSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.AddMessage(model.NewUserMessage("what is kbchat?"))
	f.store.AddMessage(model.Message{
		ID:      "a1",
		Role:    model.RoleAssistant,
		Content: "A terminal client.",
		SourceDocuments: []model.SourceDocument{
			{Content: "doc", Metadata: map[string]any{"source": "readme.md"}},
		},
	})
	f.pump(t)

	view := f.m.View()
	assert.Contains(t, view, "what is kbchat?")
	assert.Contains(t, view, "terminal client")
	assert.Contains(t, view, "readme.md")
}

func TestModel_StateFeedKeepsLatest(t *testing.T) {
	f := newFixture(t)
	f.store.SetError("first")
	f.store.SetError("second")
	f.store.SetError("third")

	f.pump(t)
	assert.Equal(t, "third", f.m.st.Error)
	select {
	case <-f.m.states:
		t.Fatal("stale snapshots should have been dropped")
	default:
	}
}

func TestModel_SubmitSends(t *testing.T) {
	f := newFixture(t)
	f.m.input.SetValue("hello")

	f.exec(f.m.submit())
	assert.Equal(t, []string{"hello"}, f.chat.sent)
	assert.Empty(t, f.m.input.Value())
}

func TestModel_SubmitBlankIsNoop(t *testing.T) {
	f := newFixture(t)
	f.m.input.SetValue("   ")
	assert.Nil(t, f.m.submit())
	assert.Empty(t, f.chat.sent)
}

func TestModel_EscCancelsActiveTurn(t *testing.T) {
	f := newFixture(t)
	f.chat.active = true

	_, handled := f.m.handleKey(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, handled)
	assert.Equal(t, 1, f.chat.cancels)
}

func TestModel_NewChatKey(t *testing.T) {
	f := newFixture(t)
	cmd, _ := f.m.handleKey(tea.KeyMsg{Type: tea.KeyCtrlN})
	f.exec(cmd)
	assert.Equal(t, []string{"new"}, f.sessions.Calls())
}

func TestModel_SidebarOpensSession(t *testing.T) {
	f := newFixture(t)
	seedSessions(f)
	f.pump(t)

	f.m.handleKey(tea.KeyMsg{Type: tea.KeyTab})
	require.True(t, f.m.sidebar.Focused())
	f.m.handleKey(tea.KeyMsg{Type: tea.KeyDown})
	cmd, _ := f.m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	f.exec(cmd)

	assert.Equal(t, []string{"select b"}, f.sessions.Calls())
	assert.False(t, f.m.sidebar.Focused(), "focus returns to input")
}

func TestModel_DeleteNeedsSecondPress(t *testing.T) {
	f := newFixture(t)
	seedSessions(f)
	f.pump(t)
	f.m.handleKey(tea.KeyMsg{Type: tea.KeyTab})

	cmd, _ := f.m.handleKey(keyRunes("d"))
	assert.Nil(t, cmd)
	assert.Contains(t, f.m.View(), "Press d again")

	// Moving away disarms.
	f.m.handleKey(tea.KeyMsg{Type: tea.KeyDown})
	cmd, _ = f.m.handleKey(keyRunes("d"))
	assert.Nil(t, cmd)

	cmd, _ = f.m.handleKey(keyRunes("d"))
	f.exec(cmd)
	assert.Equal(t, []string{"delete b"}, f.sessions.Calls())
}

func TestModel_RenameFlow(t *testing.T) {
	f := newFixture(t)
	seedSessions(f)
	f.pump(t)
	f.m.handleKey(tea.KeyMsg{Type: tea.KeyTab})

	f.m.handleKey(keyRunes("r"))
	require.Equal(t, modeRename, f.m.mode)
	assert.Equal(t, "Alpha", f.m.input.Value())

	f.m.input.SetValue("  Renamed ")
	cmd, _ := f.m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	f.exec(cmd)

	assert.Equal(t, []string{"rename a Renamed"}, f.sessions.Calls())
	assert.Equal(t, modeChat, f.m.mode)
}

func TestModel_ToggleActive(t *testing.T) {
	f := newFixture(t)
	seedSessions(f)
	f.pump(t)
	f.m.handleKey(tea.KeyMsg{Type: tea.KeyTab})

	cmd, _ := f.m.handleKey(keyRunes("a"))
	f.exec(cmd)
	assert.Equal(t, []string{"deactivate a"}, f.sessions.Calls())
}

func TestModel_SearchFiltersSidebar(t *testing.T) {
	f := newFixture(t)
	seedSessions(f)
	f.pump(t)
	f.sessions.found = []model.Session{{SessionID: "b", Title: "Beta", IsActive: true}}

	f.m.input.SetValue("/search bet")
	msg := f.exec(f.m.submit())
	require.IsType(t, SearchResultMsg{}, msg)

	cur, ok := f.m.sidebar.Cursor()
	require.True(t, ok)
	assert.Equal(t, "b", cur.SessionID)
	assert.Contains(t, f.m.View(), "Search: bet")

	f.m.handleKey(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, f.m.search)
}

func TestModel_UnknownCommandNotifies(t *testing.T) {
	f := newFixture(t)
	f.m.input.SetValue("/bogus")
	f.m.submit()

	n := <-f.m.cfg.Notes.C()
	assert.Equal(t, notify.KindWarning, n.Kind)
	assert.Contains(t, n.Message, "/bogus")
}

func TestModel_ExportWritesFile(t *testing.T) {
	f := newFixture(t)
	f.store.AddMessage(model.NewUserMessage("hi"))
	f.pump(t)

	f.m.input.SetValue("/export json")
	msg := f.exec(f.m.submit())
	done, ok := msg.(OpDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)

	n := <-f.m.cfg.Notes.C()
	assert.Equal(t, notify.KindSuccess, n.Kind)
	assert.Contains(t, n.Message, ".json")
}

func TestModel_NotificationBecomesToast(t *testing.T) {
	f := newFixture(t)
	f.m.Update(NotifyMsg{Note: notify.Error("Send failed", "Network error")})

	assert.Equal(t, 1, f.m.toasts.Len())
	assert.Contains(t, f.m.View(), "Network error")
}

func TestModel_BookmarksSelection(t *testing.T) {
	f := newFixture(t)
	f.store.Batch(func(st *model.ChatState) {
		st.SelectedSession = &model.Session{SessionID: "saved-1"}
		st.SessionID = "saved-1"
	})
	f.pump(t)
	assert.Equal(t, "saved-1", f.marks.id)
}

func TestModel_InitReopensLastSession(t *testing.T) {
	f := newFixture(t)
	f.marks.id = "saved-9"

	batch, ok := f.m.Init()().(tea.BatchMsg)
	require.True(t, ok)

	// Run the session commands; the feed waits block, so skip them.
	var ran []string
	for _, cmd := range batch {
		if cmd == nil {
			continue
		}
		done := make(chan tea.Msg, 1)
		go func() { done <- cmd() }()
		select {
		case msg := <-done:
			if op, ok := msg.(OpDoneMsg); ok {
				ran = append(ran, op.Op)
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	assert.ElementsMatch(t, []string{"refresh", "select"}, ran)
	assert.Contains(t, f.sessions.Calls(), "select saved-9")
}
