// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the chat state store and its closed set of actions.
package state

import (
	"slices"

	"github.com/jeranaias/kbchat/internal/model"
)

// Action is one state change. Actions are built only by the constructors
// in this package, so the set the store accepts is closed. The reducer
// receives a private copy of the current state and returns the next state.
type Action struct {
	reduce func(model.ChatState) model.ChatState
}

func act(fn func(model.ChatState) model.ChatState) Action {
	return Action{reduce: fn}
}

// apply runs the reducer. The zero Action changes nothing.
func (a Action) apply(st model.ChatState) model.ChatState {
	if a.reduce == nil {
		return st
	}
	return a.reduce(st)
}

// MessagePatch carries the fields UpdateLastMessage merges into the last
// message. Nil fields are left unchanged.
type MessagePatch struct {
	Content         *string
	SourceDocuments []model.SourceDocument
}

// ContentPatch is a MessagePatch that only replaces the content.
func ContentPatch(content string) MessagePatch {
	return MessagePatch{Content: &content}
}

// =============================================================================
// MESSAGE ACTIONS
// =============================================================================

// SetMessages replaces the message list.
func SetMessages(list []model.Message) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Messages = model.CloneMessages(list)
		if st.Messages == nil {
			st.Messages = []model.Message{}
		}
		return st
	})
}

// UpdateMessages replaces the message list with fn applied to the list
// current at commit time.
func UpdateMessages(fn func([]model.Message) []model.Message) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Messages = fn(st.Messages)
		if st.Messages == nil {
			st.Messages = []model.Message{}
		}
		return st
	})
}

// AddMessage appends m.
func AddMessage(m model.Message) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Messages = append(st.Messages, m.Clone())
		return st
	})
}

// UpdateLastMessage merges p into the last message. It is a no-op on an
// empty list.
func UpdateLastMessage(p MessagePatch) Action {
	return act(func(st model.ChatState) model.ChatState {
		n := len(st.Messages)
		if n == 0 {
			return st
		}
		last := st.Messages[n-1]
		if p.Content != nil {
			last.Content = *p.Content
		}
		if p.SourceDocuments != nil {
			last.SourceDocuments = slices.Clone(p.SourceDocuments)
		}
		st.Messages[n-1] = last
		return st
	})
}

// ClearMessages empties the message list.
func ClearMessages() Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Messages = []model.Message{}
		return st
	})
}

// PatchTailMessage merges p into the last message only while that message
// is id. A placeholder that was replaced or followed by newer messages is
// left alone.
func PatchTailMessage(id string, p MessagePatch) Action {
	return act(func(st model.ChatState) model.ChatState {
		n := len(st.Messages)
		if n == 0 || st.Messages[n-1].ID != id {
			return st
		}
		return UpdateLastMessage(p).apply(st)
	})
}

// ReplaceMessage removes the message id and appends m at the end of the
// list. Nothing happens when id is no longer listed.
func ReplaceMessage(id string, m model.Message) Action {
	return act(func(st model.ChatState) model.ChatState {
		i := model.IndexOfMessage(st.Messages, id)
		if i < 0 {
			return st
		}
		st.Messages = append(st.Messages[:i], st.Messages[i+1:]...)
		st.Messages = append(st.Messages, m.Clone())
		return st
	})
}

// =============================================================================
// SESSION ACTIONS
// =============================================================================

// SetSessions replaces the session list.
func SetSessions(list []model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Sessions = model.CloneSessions(list)
		if st.Sessions == nil {
			st.Sessions = []model.Session{}
		}
		return st
	})
}

// UpdateSessions replaces the session list with fn applied to the list
// current at commit time.
func UpdateSessions(fn func([]model.Session) []model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Sessions = fn(st.Sessions)
		if st.Sessions == nil {
			st.Sessions = []model.Session{}
		}
		return st
	})
}

// SetSelectedSession sets or (with nil) clears the selection.
func SetSelectedSession(s *model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.SelectedSession = nil
		if s != nil {
			sel := s.Clone()
			st.SelectedSession = &sel
		}
		return st
	})
}

// SetSessionID sets the id sent with chat requests.
func SetSessionID(id string) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.SessionID = id
		return st
	})
}

// SyncSessions replaces the list with the server's copy and refreshes the
// selection mirror from it.
func SyncSessions(list []model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		st = SetSessions(list).apply(st)
		if st.SelectedSession != nil {
			if s, ok := st.Session(st.SelectedSession.SessionID); ok {
				s = s.Clone()
				st.SelectedSession = &s
			}
		}
		return st
	})
}

// UpsertSession replaces the listed session with the same id or appends s.
func UpsertSession(s model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		if i := model.IndexOfSession(st.Sessions, s.SessionID); i >= 0 {
			st.Sessions[i] = s.Clone()
			return st
		}
		st.Sessions = append(st.Sessions, s.Clone())
		return st
	})
}

// PatchSession applies fn to the listed session id and to the selection
// mirror when id is selected.
func PatchSession(id string, fn func(*model.Session)) Action {
	return act(func(st model.ChatState) model.ChatState {
		if i := model.IndexOfSession(st.Sessions, id); i >= 0 {
			fn(&st.Sessions[i])
		}
		if st.IsSelected(id) {
			fn(st.SelectedSession)
		}
		return st
	})
}

// SelectSession makes sel the selection and its id the chat session id.
// The message list is kept until the session's history is applied.
func SelectSession(sel model.Session) Action {
	return act(func(st model.ChatState) model.ChatState {
		if s, ok := st.Session(sel.SessionID); ok {
			sel = s
		}
		sel = sel.Clone()
		st.SelectedSession = &sel
		st.SessionID = sel.SessionID
		st.Error = ""
		return st
	})
}

// StartChat switches to the unsaved session freshID: no selection, no
// messages, no error. The session list is kept.
func StartChat(freshID string) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.SessionID = freshID
		st.SelectedSession = nil
		st.Messages = []model.Message{}
		st.Error = ""
		return st
	})
}

// RemoveSession drops id from the list. When id is the selected or current
// session the chat moves to freshID.
func RemoveSession(id, freshID string) Action {
	return act(func(st model.ChatState) model.ChatState {
		if i := model.IndexOfSession(st.Sessions, id); i >= 0 {
			st.Sessions = append(st.Sessions[:i], st.Sessions[i+1:]...)
		}
		if st.IsSelected(id) || st.SessionID == id {
			return StartChat(freshID).apply(st)
		}
		return st
	})
}

// ClearSessions empties the list and moves the chat to freshID.
func ClearSessions(freshID string) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Sessions = []model.Session{}
		return StartChat(freshID).apply(st)
	})
}

// =============================================================================
// GUARDS
// =============================================================================

// ForSession applies a only while id is the selected session. A result
// fetched for a session the user has since left is dropped.
func ForSession(id string, a Action) Action {
	return act(func(st model.ChatState) model.ChatState {
		if !st.IsSelected(id) {
			return st
		}
		return a.apply(st)
	})
}

// Guard applies a only if ok reports true at commit time. ok runs under the
// store lock and must not touch the store.
func Guard(ok func() bool, a Action) Action {
	return act(func(st model.ChatState) model.ChatState {
		if !ok() {
			return st
		}
		return a.apply(st)
	})
}

// =============================================================================
// FLAG ACTIONS
// =============================================================================

// SetLoading sets the chat loading flag.
func SetLoading(v bool) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.IsLoading = v
		return st
	})
}

// SetSessionsLoading sets the session list loading flag.
func SetSessionsLoading(v bool) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.IsSessionsLoading = v
		return st
	})
}

// SetError sets the error text. A non-empty error also clears both loading
// flags; an empty one only clears the error.
func SetError(msg string) Action {
	return act(func(st model.ChatState) model.ChatState {
		st.Error = msg
		if msg != "" {
			st.IsLoading = false
			st.IsSessionsLoading = false
		}
		return st
	})
}

// Reset returns the initial state for sessionID.
func Reset(sessionID string) Action {
	return act(func(model.ChatState) model.ChatState {
		return model.NewChatState(sessionID)
	})
}

// Compose applies actions left to right as one action.
func Compose(actions ...Action) Action {
	return act(func(st model.ChatState) model.ChatState {
		for _, a := range actions {
			st = a.apply(st)
		}
		return st
	})
}
