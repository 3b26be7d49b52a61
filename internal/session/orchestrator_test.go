// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/state"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

// fakeBackend is an in-memory session server.
type fakeBackend struct {
	mu       sync.Mutex
	sessions []model.Session
	messages map[string][]api.HistoryMessage
	nextID   int
	calls    []string
	lists    atomic.Int32

	failUpdate error
	failDelete error
	failList   error
	failCreate error
	failFull   error
	// fullGate, when set, blocks GetSessionFull until closed.
	fullGate chan struct{}
	// listGate, when set, blocks ListSessions until closed.
	listGate chan struct{}
	// listEarly makes ListSessions read the sessions when the request
	// arrives rather than when it is answered.
	listEarly bool
}

func newFakeBackend(sessions ...model.Session) *fakeBackend {
	return &fakeBackend{sessions: sessions, messages: map[string][]api.HistoryMessage{}}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ListSessions(ctx context.Context, _ api.ListOptions) (*api.SessionList, error) {
	var early *api.SessionList
	if f.listEarly {
		early, _ = f.listNow()
	}
	f.record("list")
	f.lists.Add(1)
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if early != nil {
		return early, nil
	}
	return f.listNow()
}

func (f *fakeBackend) listNow() (*api.SessionList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	return &api.SessionList{Sessions: model.CloneSessions(f.sessions), TotalCount: len(f.sessions)}, nil
}

func (f *fakeBackend) CreateSession(_ context.Context, req api.CreateSessionRequest) (*model.Session, error) {
	f.record("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.nextID++
	s := model.Session{
		ID:        int64(f.nextID),
		SessionID: "srv-" + string(rune('a'+f.nextID-1)),
		Title:     req.Title,
		CreatedAt: "2025-01-01T00:00:00",
		UpdatedAt: "2025-01-01T00:00:00",
		IsActive:  true,
	}
	f.sessions = append(f.sessions, s)
	return &s, nil
}

func (f *fakeBackend) GetSessionFull(ctx context.Context, id string) (*api.SessionHistory, error) {
	f.record("full " + id)
	if f.fullGate != nil {
		select {
		case <-f.fullGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFull != nil {
		return nil, f.failFull
	}
	var sess model.Session
	if i := model.IndexOfSession(f.sessions, id); i >= 0 {
		sess = f.sessions[i].Clone()
	}
	return &api.SessionHistory{Session: sess, Messages: f.messages[id]}, nil
}

func (f *fakeBackend) UpdateSession(_ context.Context, id string, req api.UpdateSessionRequest) (*model.Session, error) {
	f.record("update " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return nil, f.failUpdate
	}
	i := model.IndexOfSession(f.sessions, id)
	if i < 0 {
		return nil, &api.HTTPStatusError{Status: 404, Detail: "Session not found"}
	}
	if req.Title != nil {
		f.sessions[i].Title = *req.Title
	}
	if req.IsActive != nil {
		f.sessions[i].IsActive = *req.IsActive
	}
	f.sessions[i].UpdatedAt = "2025-02-02T00:00:00"
	s := f.sessions[i].Clone()
	return &s, nil
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	f.record("delete " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if i := model.IndexOfSession(f.sessions, id); i >= 0 {
		f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
	}
	return nil
}

func (f *fakeBackend) DeleteAllSessions(context.Context) (*api.DeleteAllResult, error) {
	f.record("delete all")
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions)
	f.sessions = nil
	return &api.DeleteAllResult{DeletedSessions: n}, nil
}

func (f *fakeBackend) SearchSessions(_ context.Context, query string, _ api.ListOptions) (*api.SearchResult, error) {
	f.record("search " + query)
	return &api.SearchResult{Query: query}, nil
}

func (f *fakeBackend) ExportSession(_ context.Context, id string, format api.ExportFormat) (*api.SessionExport, error) {
	f.record("export " + id)
	return &api.SessionExport{Format: format, Raw: []byte(`{"data":"a,b"}`)}, nil
}

func (f *fakeBackend) CleanupSessions(_ context.Context, days int) (*api.CleanupResult, error) {
	f.record("cleanup")
	return &api.CleanupResult{DeletedSessions: 2, DaysOld: days}, nil
}

// stopRecorder counts stream stops.
type stopRecorder struct{ n atomic.Int32 }

func (s *stopRecorder) Stop(context.Context) error {
	s.n.Add(1)
	return nil
}

func sess(id, title string) model.Session {
	return model.Session{SessionID: id, Title: title, IsActive: true}
}

type fixture struct {
	orch    *Orchestrator
	store   *state.Store
	backend *fakeBackend
	rec     *notify.Recorder
	streams *stopRecorder
}

func newFixture(t *testing.T, backend *fakeBackend) fixture {
	t.Helper()
	clock := time.UnixMilli(1_700_000_000_000)
	store := state.New(state.WithClock(func() time.Time { return clock }))
	rec := &notify.Recorder{}
	streams := &stopRecorder{}
	orch := New(Config{
		Store:    store,
		Backend:  backend,
		Streams:  streams,
		Notifier: rec,
		Now:      func() time.Time { return clock },
	})
	t.Cleanup(orch.Wait)
	return fixture{orch: orch, store: store, backend: backend, rec: rec, streams: streams}
}

// =============================================================================
// REFRESH / CREATE
// =============================================================================

func TestRefresh(t *testing.T) {
	fx := newFixture(t, newFakeBackend(sess("a", "Alpha"), sess("b", "Beta")))

	var sawLoading bool
	fx.store.Subscribe(func(st model.ChatState) {
		if st.IsSessionsLoading {
			sawLoading = true
		}
	})

	require.NoError(t, fx.orch.Refresh(context.Background()))

	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, "Alpha", st.Sessions[0].Title)
	assert.False(t, st.IsSessionsLoading)
	assert.True(t, sawLoading)
}

func TestRefresh_Failure(t *testing.T) {
	backend := newFakeBackend()
	backend.failList = &api.NetworkError{Op: "GET", Err: errors.New("refused")}
	fx := newFixture(t, backend)

	err := fx.orch.Refresh(context.Background())

	var ne *api.NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.False(t, fx.store.Snapshot().IsSessionsLoading)
	assert.Equal(t, 1, fx.rec.Count(notify.KindError))
}

func TestRefresh_ConcurrentCallsShareRequest(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	backend.listGate = make(chan struct{})
	fx := newFixture(t, backend)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, fx.orch.Refresh(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return backend.lists.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.listGate)
	wg.Wait()

	assert.Equal(t, int32(1), backend.lists.Load())
}

func TestCreate_AppearsOnceWithTitle(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	s, err := fx.orch.Create(context.Background(), "Roadmap")
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", s.Title)

	fx.orch.Wait()
	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 1, "create plus background refresh must not duplicate")
	assert.Equal(t, s.SessionID, st.Sessions[0].SessionID)
	assert.Equal(t, "Roadmap", st.Sessions[0].Title)
	assert.Contains(t, fx.backend.Calls(), "list")
}

func TestCreate_NotOverwrittenByEarlierList(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	backend.listEarly = true
	backend.listGate = make(chan struct{})
	fx := newFixture(t, backend)

	done := make(chan error, 1)
	go func() { done <- fx.orch.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return backend.lists.Load() == 1 }, time.Second, time.Millisecond)

	// The in-flight list was read before this create.
	s, err := fx.orch.Create(context.Background(), "Foo")
	require.NoError(t, err)
	close(backend.listGate)
	require.NoError(t, <-done)
	fx.orch.Wait()

	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 2)
	var foos int
	for _, x := range st.Sessions {
		if x.Title == "Foo" {
			foos++
			assert.Equal(t, s.SessionID, x.SessionID)
		}
	}
	assert.Equal(t, 1, foos)
	assert.GreaterOrEqual(t, backend.lists.Load(), int32(2), "follow-up issued its own request")
	assert.False(t, st.IsSessionsLoading)
}

func TestRefresh_AfterCreateDoesNotJoinEarlierRequest(t *testing.T) {
	backend := newFakeBackend()
	backend.listEarly = true
	backend.listGate = make(chan struct{})
	fx := newFixture(t, backend)

	first := make(chan error, 1)
	go func() { first <- fx.orch.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return backend.lists.Load() == 1 }, time.Second, time.Millisecond)

	_, err := fx.orch.Create(context.Background(), "Foo")
	require.NoError(t, err)

	second := make(chan error, 1)
	go func() { second <- fx.orch.Refresh(context.Background()) }()
	// One request from the background refresh and one from the second call.
	require.Eventually(t, func() bool { return backend.lists.Load() == 3 }, time.Second, time.Millisecond)

	close(backend.listGate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	fx.orch.Wait()

	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, "Foo", st.Sessions[0].Title)
}

func TestCreate_BackgroundRefreshFailureIsQuiet(t *testing.T) {
	backend := newFakeBackend()
	backend.failList = &api.NetworkError{Op: "GET /api/sessions/", Err: errors.New("refused")}
	fx := newFixture(t, backend)

	s, err := fx.orch.Create(context.Background(), "Foo")
	require.NoError(t, err)
	fx.orch.Wait()

	assert.Contains(t, backend.Calls(), "list")
	assert.Equal(t, 0, fx.rec.Count(notify.KindError))
	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, s.SessionID, st.Sessions[0].SessionID)
	assert.False(t, st.IsSessionsLoading)
}

func TestCreate_DefaultTitle(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	s, err := fx.orch.Create(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSessionTitle, s.Title)
}

func TestCreate_FailureLeavesStateUnchanged(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	before := fx.store.Snapshot()

	backend.failCreate = &api.HTTPStatusError{Status: 500, Detail: "boom"}
	s, err := fx.orch.Create(context.Background(), "x")

	assert.Nil(t, s)
	assert.Error(t, err)
	assert.Equal(t, before.Sessions, fx.store.Snapshot().Sessions)
	assert.Equal(t, 1, fx.rec.Count(notify.KindError))
}

func TestSynthesise_FillsMissingFields(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	s := fx.orch.synthesise(&model.Session{}, "T")

	assert.Equal(t, "session_1700000000000", s.SessionID)
	assert.Equal(t, "T", s.Title)
	assert.NotEmpty(t, s.CreatedAt)
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
	assert.True(t, s.IsActive)
}

// =============================================================================
// SELECT
// =============================================================================

func TestSelect_LoadsMessages(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	backend.messages["a"] = []api.HistoryMessage{
		{MessageID: "m1", Role: model.RoleUser, Content: "hi"},
		{MessageID: "m2", Role: model.RoleAssistant, Content: "hello"},
	}
	fx := newFixture(t, backend)

	require.NoError(t, fx.orch.Select(context.Background(), "a"))

	st := fx.store.Snapshot()
	assert.Equal(t, "a", st.SessionID)
	require.NotNil(t, st.SelectedSession)
	assert.Equal(t, "Alpha", st.SelectedSession.Title)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "hello", st.Messages[1].Content)
	assert.Equal(t, int32(1), fx.streams.n.Load())
}

func TestSelect_Idempotent(t *testing.T) {
	fx := newFixture(t, newFakeBackend(sess("a", "Alpha")))

	require.NoError(t, fx.orch.Select(context.Background(), "a"))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))

	var fulls int
	for _, c := range fx.backend.Calls() {
		if c == "full a" {
			fulls++
		}
	}
	assert.Equal(t, 1, fulls)
	assert.Equal(t, int32(1), fx.streams.n.Load())
}

func TestSelect_StaleResultDiscarded(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"), sess("b", "Beta"))
	backend.messages["a"] = []api.HistoryMessage{{MessageID: "ma", Role: model.RoleUser, Content: "from a"}}
	backend.fullGate = make(chan struct{})
	fx := newFixture(t, backend)

	done := make(chan error, 1)
	go func() { done <- fx.orch.Select(context.Background(), "a") }()
	require.Eventually(t, func() bool { return fx.store.Snapshot().IsSelected("a") }, time.Second, time.Millisecond)

	// The user moves on before a's history arrives.
	fx.store.Batch(func(st *model.ChatState) {
		b := sess("b", "Beta")
		st.SelectedSession = &b
		st.SessionID = "b"
		st.Messages = []model.Message{model.NewUserMessage("from b")}
	})
	close(backend.fullGate)
	require.NoError(t, <-done)

	st := fx.store.Snapshot()
	assert.Equal(t, "b", st.SessionID)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "from b", st.Messages[0].Content)
}

func TestSelect_KeepsMessagesUntilHistoryArrives(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"), sess("b", "Beta"))
	backend.messages["b"] = []api.HistoryMessage{{MessageID: "mb", Role: model.RoleUser, Content: "from b"}}
	backend.fullGate = make(chan struct{})
	fx := newFixture(t, backend)
	fx.store.AddMessage(model.NewUserMessage("from a"))

	done := make(chan error, 1)
	go func() { done <- fx.orch.Select(context.Background(), "b") }()
	require.Eventually(t, func() bool {
		return fx.store.Snapshot().IsSelected("b") && len(backend.Calls()) == 1
	}, time.Second, time.Millisecond)

	st := fx.store.Snapshot()
	require.Len(t, st.Messages, 1, "previous conversation stays while loading")
	assert.Equal(t, "from a", st.Messages[0].Content)

	close(backend.fullGate)
	require.NoError(t, <-done)

	st = fx.store.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "from b", st.Messages[0].Content)
}

func TestSelect_Failure(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	backend.failFull = &api.HTTPStatusError{Status: 404, Detail: "Session not found"}
	fx := newFixture(t, backend)
	fx.store.AddMessage(model.NewUserMessage("old"))

	err := fx.orch.Select(context.Background(), "a")

	assert.Error(t, err)
	st := fx.store.Snapshot()
	assert.Empty(t, st.Messages)
	assert.Contains(t, st.Error, "Session not found")
	assert.Equal(t, 1, fx.rec.Count(notify.KindError))
}

func TestSelect_EmptyID(t *testing.T) {
	fx := newFixture(t, newFakeBackend())
	assert.ErrorIs(t, fx.orch.Select(context.Background(), ""), ErrNoSession)
}

// =============================================================================
// OPTIMISTIC MUTATIONS
// =============================================================================

func TestRename_Optimistic(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))

	require.NoError(t, fx.orch.Rename(context.Background(), "a", "  Renamed "))

	st := fx.store.Snapshot()
	assert.Equal(t, "Renamed", st.Sessions[0].Title)
	assert.Equal(t, "Renamed", st.SelectedSession.Title)
	assert.Equal(t, "2025-02-02T00:00:00", st.Sessions[0].UpdatedAt, "server copy merged")
}

func TestRename_FailureReconciles(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	backend.failUpdate = &api.HTTPStatusError{Status: 500, Detail: "db locked"}

	var titles []string
	fx.store.Subscribe(func(st model.ChatState) {
		if len(st.Sessions) == 1 {
			titles = append(titles, st.Sessions[0].Title)
		}
	})

	err := fx.orch.Rename(context.Background(), "a", "New")

	assert.Error(t, err)
	assert.Contains(t, titles, "New", "optimistic title shown first")
	assert.Equal(t, "Alpha", fx.store.Snapshot().Sessions[0].Title, "server truth restored")
	assert.Equal(t, 1, fx.rec.Count(notify.KindError))
}

func TestRename_FailedReconcileNotifiesOnce(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	backend.failUpdate = &api.HTTPStatusError{Status: 500, Detail: "db locked"}
	backend.failList = &api.NetworkError{Op: "GET /api/sessions/", Err: errors.New("refused")}

	err := fx.orch.Rename(context.Background(), "a", "New")

	assert.Error(t, err)
	assert.Equal(t, []string{"list", "update a", "list"}, backend.Calls())
	require.Equal(t, 1, fx.rec.Count(notify.KindError))
	last, ok := fx.rec.Last()
	require.True(t, ok)
	assert.Equal(t, "Failed to rename session", last.Title)
	assert.False(t, fx.store.Snapshot().IsSessionsLoading)
}

func TestRename_Validation(t *testing.T) {
	fx := newFixture(t, newFakeBackend(sess("a", "Alpha")))

	var ve *api.ValidationError
	assert.True(t, errors.As(fx.orch.Rename(context.Background(), "a", " "), &ve))
	assert.ErrorIs(t, fx.orch.Rename(context.Background(), "", "x"), ErrNoSession)
	assert.Empty(t, fx.backend.Calls())
}

func TestSetActive(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))

	require.NoError(t, fx.orch.SetActive(context.Background(), "a", false))
	assert.False(t, fx.store.Snapshot().Sessions[0].IsActive)

	backend.failUpdate = errors.New("nope")
	assert.Error(t, fx.orch.SetActive(context.Background(), "a", true))
	assert.False(t, fx.store.Snapshot().Sessions[0].IsActive, "reconciled to server value")
}

func TestDelete_SelectedSessionStartsFresh(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"), sess("b", "Beta"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))
	fx.store.AddMessage(model.NewUserMessage("hi"))

	require.NoError(t, fx.orch.Delete(context.Background(), "a"))

	st := fx.store.Snapshot()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, "b", st.Sessions[0].SessionID)
	assert.Nil(t, st.SelectedSession)
	assert.Empty(t, st.Messages)
	assert.NotEqual(t, "a", st.SessionID)
	assert.True(t, model.IsProvisionalSessionID(st.SessionID))
	assert.Equal(t, int32(2), fx.streams.n.Load(), "select and delete both stop the stream")
}

func TestDelete_OtherSessionKeepsSelection(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"), sess("b", "Beta"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))

	require.NoError(t, fx.orch.Delete(context.Background(), "b"))

	st := fx.store.Snapshot()
	assert.Equal(t, "a", st.SessionID)
	require.NotNil(t, st.SelectedSession)
	assert.Equal(t, int32(1), fx.streams.n.Load())
}

func TestDelete_FailureRestoresList(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	backend.failDelete = &api.HTTPStatusError{Status: 500}

	assert.Error(t, fx.orch.Delete(context.Background(), "a"))
	require.Len(t, fx.store.Snapshot().Sessions, 1)
	assert.Equal(t, []string{"list", "delete a", "list"}, backend.Calls())
}

func TestDeleteAll(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"), sess("b", "Beta"))
	fx := newFixture(t, backend)
	require.NoError(t, fx.orch.Refresh(context.Background()))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))
	before := fx.store.Snapshot().SessionID

	_, err := fx.orch.DeleteAll(context.Background(), false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, fx.store.Snapshot().Sessions, 2)

	var commits int
	fx.store.Subscribe(func(model.ChatState) { commits++ })
	n, err := fx.orch.DeleteAll(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, commits, "cleared in one commit")
	st := fx.store.Snapshot()
	assert.Empty(t, st.Sessions)
	assert.Empty(t, st.Messages)
	assert.Nil(t, st.SelectedSession)
	assert.NotEqual(t, before, st.SessionID)
	last, ok := fx.rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindSuccess, last.Kind)
	assert.Contains(t, last.Message, "2")
}

func TestNewChat_KeepsSessions(t *testing.T) {
	fx := newFixture(t, newFakeBackend(sess("a", "Alpha")))
	require.NoError(t, fx.orch.Refresh(context.Background()))
	require.NoError(t, fx.orch.Select(context.Background(), "a"))

	require.NoError(t, fx.orch.NewChat(context.Background()))

	st := fx.store.Snapshot()
	assert.Len(t, st.Sessions, 1)
	assert.Nil(t, st.SelectedSession)
	assert.True(t, model.IsProvisionalSessionID(st.SessionID))
}

// =============================================================================
// PASS-THROUGH READS
// =============================================================================

func TestSearch(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	got, err := fx.orch.Search(context.Background(), " retry ")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, []string{"search retry"}, fx.backend.Calls())

	_, err = fx.orch.Search(context.Background(), "")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	exp, err := fx.orch.Export(context.Background(), "a", api.ExportCSV)
	require.NoError(t, err)
	csv, ok := exp.CSV()
	assert.True(t, ok)
	assert.Equal(t, "a,b", csv)
}

func TestCleanup_RefreshesInBackground(t *testing.T) {
	fx := newFixture(t, newFakeBackend(sess("a", "Alpha")))

	res, err := fx.orch.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedSessions)

	fx.orch.Wait()
	assert.Len(t, fx.store.Snapshot().Sessions, 1)
	assert.Equal(t, 1, fx.rec.Count(notify.KindSuccess))
}

func TestCleanup_BackgroundRefreshFailureIsQuiet(t *testing.T) {
	backend := newFakeBackend(sess("a", "Alpha"))
	backend.failList = &api.NetworkError{Op: "GET /api/sessions/", Err: errors.New("refused")}
	fx := newFixture(t, backend)

	_, err := fx.orch.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	fx.orch.Wait()

	assert.Equal(t, []string{"cleanup", "list"}, backend.Calls())
	assert.Equal(t, 0, fx.rec.Count(notify.KindError))
	assert.Equal(t, 1, fx.rec.Count(notify.KindSuccess))
}

func TestRunOptimistic_CustomReconcile(t *testing.T) {
	fx := newFixture(t, newFakeBackend())
	reconciled := false

	err := fx.orch.runOptimistic(context.Background(), Optimistic{
		Name:      "do thing",
		Apply:     state.SetError("pending"),
		Commit:    func(context.Context) error { return errors.New("failed") },
		Reconcile: func(context.Context) error { reconciled = true; return nil },
	})

	assert.EqualError(t, err, "do thing: failed")
	assert.True(t, reconciled)
	assert.Empty(t, fx.backend.Calls(), "default refresh not used")
}

func TestRunOptimistic_CancelledNotNotified(t *testing.T) {
	fx := newFixture(t, newFakeBackend())

	err := fx.orch.runOptimistic(context.Background(), Optimistic{
		Name:   "rename session",
		Commit: func(context.Context) error { return context.Canceled },
	})

	assert.True(t, api.IsCancellation(err))
	assert.Empty(t, fx.rec.All())
}
