// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

// ChatState is the aggregate the chat view renders from.
//
// An empty Error means no error. The state is a plain value; the state
// store hands out deep copies so readers can never alias its slices.
type ChatState struct {
	Messages          []Message `json:"messages"`
	Sessions          []Session `json:"sessions"`
	SelectedSession   *Session  `json:"selectedSession"`
	SessionID         string    `json:"sessionId"`
	IsLoading         bool      `json:"isLoading"`
	IsSessionsLoading bool      `json:"isSessionsLoading"`
	Error             string    `json:"error,omitempty"`
}

// NewChatState returns the initial state for the given session id.
func NewChatState(sessionID string) ChatState {
	return ChatState{
		Messages:  []Message{},
		Sessions:  []Session{},
		SessionID: sessionID,
	}
}

// Clone returns a deep copy of the state.
func (s ChatState) Clone() ChatState {
	s.Messages = CloneMessages(s.Messages)
	s.Sessions = CloneSessions(s.Sessions)
	if s.SelectedSession != nil {
		sel := s.SelectedSession.Clone()
		s.SelectedSession = &sel
	}
	return s
}

// LastMessage returns the final message of the list, if any.
func (s ChatState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// IsSelected reports whether sessionID is the selected session.
func (s ChatState) IsSelected(sessionID string) bool {
	return s.SelectedSession != nil && s.SelectedSession.SessionID == sessionID
}

// Session returns the listed session with the given id.
func (s ChatState) Session(sessionID string) (Session, bool) {
	if i := IndexOfSession(s.Sessions, sessionID); i >= 0 {
		return s.Sessions[i], true
	}
	return Session{}, false
}
