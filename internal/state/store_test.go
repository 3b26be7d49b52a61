// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNew_InitialState(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	s := New(WithClock(fixedClock(now)))

	st := s.Snapshot()
	assert.Equal(t, "session_1700000000000", st.SessionID)
	assert.NotNil(t, st.Messages)
	assert.Empty(t, st.Messages)
	assert.NotNil(t, st.Sessions)
	assert.Nil(t, st.SelectedSession)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "", st.Error)

	assert.Equal(t, "fixed", New(WithSessionID("fixed")).Snapshot().SessionID)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := New()
	msg := model.NewAssistantMessage("a")
	msg.SourceDocuments = []model.SourceDocument{{Content: "c", Metadata: map[string]any{"k": "v"}}}
	s.AddMessage(msg)
	s.SetSelectedSession(&model.Session{SessionID: "s1", Title: "T"})

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"
	snap.Messages[0].SourceDocuments[0].Metadata["k"] = "mutated"
	snap.SelectedSession.Title = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "a", again.Messages[0].Content)
	assert.Equal(t, "v", again.Messages[0].SourceDocuments[0].Metadata["k"])
	assert.Equal(t, "T", again.SelectedSession.Title)
}

func TestMessageActions(t *testing.T) {
	s := New()

	// No-op on empty list.
	s.UpdateLastMessage(ContentPatch("ignored"))
	assert.Empty(t, s.Snapshot().Messages)

	s.AddMessage(model.NewUserMessage("q"))
	s.AddMessage(model.NewAssistantMessage("..."))
	s.UpdateLastMessage(ContentPatch("answer"))
	s.UpdateLastMessage(MessagePatch{SourceDocuments: []model.SourceDocument{{Content: "doc"}}})

	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "q", st.Messages[0].Content, "only the last message changes")
	assert.Equal(t, "answer", st.Messages[1].Content)
	require.Len(t, st.Messages[1].SourceDocuments, 1)

	s.UpdateMessages(func(list []model.Message) []model.Message {
		return list[:1]
	})
	assert.Len(t, s.Snapshot().Messages, 1)

	s.SetMessages(nil)
	assert.NotNil(t, s.Snapshot().Messages)

	s.AddMessage(model.NewUserMessage("x"))
	s.ClearMessages()
	assert.Empty(t, s.Snapshot().Messages)
}

func TestSetMessages_DoesNotAliasCaller(t *testing.T) {
	s := New()
	list := []model.Message{model.NewUserMessage("a")}
	s.SetMessages(list)
	list[0].Content = "changed"

	assert.Equal(t, "a", s.Snapshot().Messages[0].Content)
}

func TestSetError_ClearsLoadingFlags(t *testing.T) {
	s := New()
	s.SetLoading(true)
	s.SetSessionsLoading(true)

	s.SetError("boom")
	st := s.Snapshot()
	assert.Equal(t, "boom", st.Error)
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsSessionsLoading)

	s.SetLoading(true)
	s.SetError("")
	st = s.Snapshot()
	assert.Equal(t, "", st.Error)
	assert.True(t, st.IsLoading, "clearing the error leaves loading alone")
}

func TestSessionActions(t *testing.T) {
	s := New()
	s.SetSessions([]model.Session{{SessionID: "a"}, {SessionID: "b"}})
	s.UpdateSessions(func(list []model.Session) []model.Session {
		return append(list, model.Session{SessionID: "c"})
	})
	s.SetSelectedSession(&model.Session{SessionID: "b"})
	s.SetSessionID("b")

	st := s.Snapshot()
	assert.Len(t, st.Sessions, 3)
	assert.True(t, st.IsSelected("b"))
	assert.Equal(t, "b", st.SessionID)

	s.SetSelectedSession(nil)
	assert.Nil(t, s.Snapshot().SelectedSession)
}

func TestResetState_FreshSessionID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	s := New(WithClock(fixedClock(now)))
	before := s.Snapshot().SessionID
	s.AddMessage(model.NewUserMessage("x"))
	s.SetSessions([]model.Session{{SessionID: "a"}})

	st := s.ResetState()

	assert.NotEqual(t, before, st.SessionID, "a frozen clock still yields a new id")
	assert.True(t, model.IsProvisionalSessionID(st.SessionID))
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.Sessions)
}

func TestBatch_SingleNotification(t *testing.T) {
	s := New()
	var count int
	unsubscribe := s.Subscribe(func(model.ChatState) { count++ })
	defer unsubscribe()

	st := s.Batch(func(st *model.ChatState) {
		st.Sessions = []model.Session{}
		st.SelectedSession = nil
		st.Messages = []model.Message{}
		st.IsLoading = true
	})

	assert.True(t, st.IsLoading)
	assert.Equal(t, 1, count)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s := New()
	var seen []string
	unsubscribe := s.Subscribe(func(st model.ChatState) {
		seen = append(seen, st.SessionID)
	})

	s.SetSessionID("one")
	s.SetSessionID("two")
	unsubscribe()
	unsubscribe()
	s.SetSessionID("three")

	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestSubscribe_ListenerMayDispatch(t *testing.T) {
	s := New()
	var seen []bool
	s.Subscribe(func(st model.ChatState) {
		seen = append(seen, st.IsLoading)
		if st.IsLoading {
			s.SetLoading(false)
		}
	})

	s.SetLoading(true)

	assert.Equal(t, []bool{true, false}, seen)
	assert.False(t, s.Snapshot().IsLoading)
}

func TestDispatch_ConcurrentActionsDoNotInterleave(t *testing.T) {
	s := New()
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.UpdateMessages(func(list []model.Message) []model.Message {
					return append(list, model.NewUserMessage("m"))
				})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Snapshot().Messages, workers*perWorker)
}

func TestCompose(t *testing.T) {
	s := New()
	s.Dispatch(Compose(SetLoading(true), SetSessionID("x"), SetError("e")))

	st := s.Snapshot()
	assert.Equal(t, "x", st.SessionID)
	assert.Equal(t, "e", st.Error)
	assert.False(t, st.IsLoading)
}

func TestPatchTailMessage_OnlyWhileLast(t *testing.T) {
	s := New()
	ph := model.NewAssistantMessage("")
	s.AddMessage(ph)

	s.Dispatch(PatchTailMessage(ph.ID, ContentPatch("partial")))
	assert.Equal(t, "partial", s.Snapshot().Messages[0].Content)

	s.AddMessage(model.NewUserMessage("next"))
	s.Dispatch(PatchTailMessage(ph.ID, ContentPatch("late")))

	st := s.Snapshot()
	assert.Equal(t, "partial", st.Messages[0].Content)
	assert.Equal(t, "next", st.Messages[1].Content)
}

func TestReplaceMessage(t *testing.T) {
	s := New()
	ph := model.NewAssistantMessage("...")
	s.AddMessage(model.NewUserMessage("q"))
	s.AddMessage(ph)

	final := model.NewAssistantMessage("answer")
	final.ID = ph.ID
	s.Dispatch(ReplaceMessage(ph.ID, final))

	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "answer", st.Messages[1].Content)

	s.Dispatch(ReplaceMessage("missing", model.NewAssistantMessage("x")))
	assert.Len(t, s.Snapshot().Messages, 2)
}

func TestSelectSession_KeepsMessages(t *testing.T) {
	s := New()
	s.SetSessions([]model.Session{{SessionID: "a", Title: "Alpha"}})
	s.AddMessage(model.NewUserMessage("old"))
	s.SetError("stale")

	s.Dispatch(SelectSession(model.Session{SessionID: "a"}))

	st := s.Snapshot()
	require.NotNil(t, st.SelectedSession)
	assert.Equal(t, "Alpha", st.SelectedSession.Title, "listed copy preferred")
	assert.Equal(t, "a", st.SessionID)
	assert.Empty(t, st.Error)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "old", st.Messages[0].Content)
}

func TestRemoveSession(t *testing.T) {
	s := New()
	s.SetSessions([]model.Session{{SessionID: "a"}, {SessionID: "b"}})
	s.Dispatch(SelectSession(model.Session{SessionID: "a"}))
	s.AddMessage(model.NewUserMessage("hi"))

	s.Dispatch(RemoveSession("b", "fresh-1"))
	st := s.Snapshot()
	assert.Len(t, st.Sessions, 1)
	assert.Equal(t, "a", st.SessionID)
	assert.Len(t, st.Messages, 1)

	s.Dispatch(RemoveSession("a", "fresh-2"))
	st = s.Snapshot()
	assert.Empty(t, st.Sessions)
	assert.Nil(t, st.SelectedSession)
	assert.Empty(t, st.Messages)
	assert.Equal(t, "fresh-2", st.SessionID)
}

func TestForSession_DropsResultForOtherSession(t *testing.T) {
	s := New()
	s.Dispatch(SelectSession(model.Session{SessionID: "b"}))

	s.Dispatch(ForSession("a", SetError("from a")))
	assert.Empty(t, s.Snapshot().Error)

	s.Dispatch(ForSession("b", SetError("from b")))
	assert.Equal(t, "from b", s.Snapshot().Error)
}

func TestGuard(t *testing.T) {
	s := New()
	var checks int
	no := func() bool { checks++; return false }
	yes := func() bool { checks++; return true }

	s.Dispatch(Guard(no, SetSessionID("skipped")))
	assert.NotEqual(t, "skipped", s.Snapshot().SessionID)

	s.Dispatch(Guard(yes, SetSessionID("applied")))
	assert.Equal(t, "applied", s.Snapshot().SessionID)
	assert.Equal(t, 2, checks)
}

func TestAction_ZeroValueIsNoop(t *testing.T) {
	s := New()
	before := s.Snapshot()

	s.Dispatch(Compose(Action{}, Action{}))

	assert.Equal(t, before, s.Snapshot())
}
