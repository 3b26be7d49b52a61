// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New chat"

// provisionalPrefix marks client-generated session identifiers.
const provisionalPrefix = "session_"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a persisted conversation as reported by the backend.
// The server is the source of truth for every field except while an
// optimistic edit is pending.
type Session struct {
	ID           int64          `json:"id,omitempty"`
	SessionID    string         `json:"session_id"`
	Title        string         `json:"title,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
	IsActive     bool           `json:"is_active"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	MessageCount *int           `json:"message_count,omitempty"`
}

// DisplayTitle returns the title, falling back to DefaultSessionTitle.
func (s Session) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return DefaultSessionTitle
}

// Updated parses UpdatedAt, falling back to CreatedAt.
func (s Session) Updated() time.Time {
	if t, err := ParseTime(s.UpdatedAt); err == nil {
		return t
	}
	t, _ := ParseTime(s.CreatedAt)
	return t
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	s.Metadata = maps.Clone(s.Metadata)
	if s.MessageCount != nil {
		n := *s.MessageCount
		s.MessageCount = &n
	}
	return s
}

// CloneSessions deep-copies a session list. A nil list stays nil.
func CloneSessions(list []Session) []Session {
	if list == nil {
		return nil
	}
	out := make([]Session, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out
}

// IndexOfSession returns the index of the session with the given id, or -1.
func IndexOfSession(list []Session, sessionID string) int {
	return slices.IndexFunc(list, func(s Session) bool { return s.SessionID == sessionID })
}

// =============================================================================
// PROVISIONAL IDS
// =============================================================================

// NewProvisionalSessionID returns a client-side session id of the form
// session_<epoch-ms>.
func NewProvisionalSessionID(now time.Time) string {
	return fmt.Sprintf("%s%d", provisionalPrefix, now.UnixMilli())
}

// IsProvisionalSessionID reports whether id was produced by
// NewProvisionalSessionID.
func IsProvisionalSessionID(id string) bool {
	rest, ok := strings.CutPrefix(id, provisionalPrefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.ParseInt(rest, 10, 64)
	return err == nil
}
