// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the chat state store and its closed set of actions.
package state

import (
	"slices"
	"sync"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// STORE
// =============================================================================

// Listener receives a snapshot after every commit.
type Listener func(model.ChatState)

// Store owns the ChatState. Every change goes through Dispatch, which runs
// the action under a single mutex so actions never interleave.
//
// Listeners are called outside the lock, in commit order. A listener may
// dispatch; the resulting notification is delivered after the current one.
type Store struct {
	mu    sync.Mutex
	state model.ChatState
	now   func() time.Time

	listeners    []subscriber
	nextListener int
	pending      []model.ChatState
	draining     bool
}

type subscriber struct {
	id int
	fn Listener
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for provisional session ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionID sets the initial session id instead of a fresh provisional
// one.
func WithSessionID(id string) Option {
	return func(s *Store) {
		s.state.SessionID = id
	}
}

// New creates a store in the initial state.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	id := s.state.SessionID
	if id == "" {
		id = model.NewProvisionalSessionID(s.now())
	}
	s.state = model.NewChatState(id)
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() model.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch commits a and returns the resulting state.
func (s *Store) Dispatch(a Action) model.ChatState {
	s.mu.Lock()
	s.state = a.apply(s.state.Clone())
	snap := s.state.Clone()
	if len(s.listeners) > 0 {
		s.pending = append(s.pending, snap)
	}
	s.mu.Unlock()

	s.drain()
	return snap
}

// Batch applies several field changes as one commit. Production code
// composes named actions; Batch seeds fixtures in tests.
func (s *Store) Batch(fn func(st *model.ChatState)) model.ChatState {
	return s.Dispatch(act(func(st model.ChatState) model.ChatState {
		fn(&st)
		return st
	}))
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.listeners = slices.DeleteFunc(s.listeners, func(sub subscriber) bool { return sub.id == id })
			s.mu.Unlock()
		})
	}
}

// drain delivers pending notifications. Only one goroutine drains at a
// time; others leave their snapshots in the queue for it.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		listeners := slices.Clone(s.listeners)
		s.mu.Unlock()

		for _, st := range batch {
			for _, sub := range listeners {
				sub.fn(st.Clone())
			}
		}

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// FreshSessionID returns a provisional id from the store clock that differs
// from current.
func (s *Store) FreshSessionID(current string) string {
	t := s.now()
	id := model.NewProvisionalSessionID(t)
	for id == current {
		t = t.Add(time.Millisecond)
		id = model.NewProvisionalSessionID(t)
	}
	return id
}

// =============================================================================
// ACTION SHORTHANDS
// =============================================================================

// SetMessages replaces the message list.
func (s *Store) SetMessages(list []model.Message) { s.Dispatch(SetMessages(list)) }

// UpdateMessages applies fn to the latest message list.
func (s *Store) UpdateMessages(fn func([]model.Message) []model.Message) {
	s.Dispatch(UpdateMessages(fn))
}

// AddMessage appends m.
func (s *Store) AddMessage(m model.Message) { s.Dispatch(AddMessage(m)) }

// UpdateLastMessage merges p into the last message.
func (s *Store) UpdateLastMessage(p MessagePatch) { s.Dispatch(UpdateLastMessage(p)) }

// SetSessions replaces the session list.
func (s *Store) SetSessions(list []model.Session) { s.Dispatch(SetSessions(list)) }

// UpdateSessions applies fn to the latest session list.
func (s *Store) UpdateSessions(fn func([]model.Session) []model.Session) {
	s.Dispatch(UpdateSessions(fn))
}

// SetSelectedSession sets or clears the selection.
func (s *Store) SetSelectedSession(sel *model.Session) { s.Dispatch(SetSelectedSession(sel)) }

// SetSessionID sets the id sent with chat requests.
func (s *Store) SetSessionID(id string) { s.Dispatch(SetSessionID(id)) }

// SetLoading sets the chat loading flag.
func (s *Store) SetLoading(v bool) { s.Dispatch(SetLoading(v)) }

// SetSessionsLoading sets the session list loading flag.
func (s *Store) SetSessionsLoading(v bool) { s.Dispatch(SetSessionsLoading(v)) }

// SetError sets the error text.
func (s *Store) SetError(msg string) { s.Dispatch(SetError(msg)) }

// ClearMessages empties the message list.
func (s *Store) ClearMessages() { s.Dispatch(ClearMessages()) }

// ResetState returns to the initial state with a fresh provisional session
// id.
func (s *Store) ResetState() model.ChatState {
	return s.Dispatch(act(func(st model.ChatState) model.ChatState {
		return Reset(s.FreshSessionID(st.SessionID)).apply(st)
	}))
}
