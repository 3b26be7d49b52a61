// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// =============================================================================
// SOURCE DOCUMENT
// =============================================================================

// SourceDocument is a knowledge-base passage the backend cited for an answer.
type SourceDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the best human label for the document's origin, or "".
func (d SourceDocument) Source() string {
	for _, key := range []string{"source", "filename", "title", "doc_id"} {
		if v, ok := d.Metadata[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// Clone returns a copy whose metadata map is not shared with d.
func (d SourceDocument) Clone() SourceDocument {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a session's message list.
//
// Timestamp is kept as the ISO-8601 string seen on the wire; use Time to
// parse it.
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	Timestamp       string           `json:"timestamp"`
	SourceDocuments []SourceDocument `json:"sourceDocuments,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: FormatTime(time.Now()),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.SourceDocuments != nil {
		docs := make([]SourceDocument, len(m.SourceDocuments))
		for i, d := range m.SourceDocuments {
			docs[i] = d.Clone()
		}
		m.SourceDocuments = docs
	}
	return m
}

// Time parses the message timestamp. The zero time is returned when the
// timestamp is empty or unparseable.
func (m Message) Time() time.Time {
	t, _ := ParseTime(m.Timestamp)
	return t
}

// Preview returns a truncated single-line preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if maxLen <= 3 || len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// CloneMessages deep-copies a message list. A nil list stays nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// IndexOfMessage returns the index of the message with the given ID, or -1.
func IndexOfMessage(msgs []Message, id string) int {
	return slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
}

// =============================================================================
// TIME HELPERS
// =============================================================================

// timeLayouts lists the ISO-8601 shapes the backend emits. Python's
// isoformat() omits the zone for naive datetimes.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTime parses an ISO-8601 timestamp as produced by the backend.
// Zone-less values are interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTime formats t the way client-created records are stamped.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
