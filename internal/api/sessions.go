// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jeranaias/kbchat/internal/model"
)

// Session endpoint paths.
const (
	PathSessions = "/api/chat/sessions"
	PathSearch   = "/api/chat/search"
	PathCleanup  = "/api/chat/cleanup"
)

// DefaultCleanupDays matches the backend's default retention window.
const DefaultCleanupDays = 30

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// CreateSessionRequest is the body of POST /api/chat/sessions.
type CreateSessionRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UpdateSessionRequest is the body of PUT /api/chat/sessions/{id}. Nil
// fields are left unchanged by the server.
type UpdateSessionRequest struct {
	Title    *string        `json:"title,omitempty"`
	IsActive *bool          `json:"is_active,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ListOptions filters GET /api/chat/sessions and /api/chat/search.
type ListOptions struct {
	UserID     string
	Limit      int
	Offset     int
	Page       int
	PerPage    int
	ActiveOnly *bool // nil uses the server default (true)
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.UserID != "" {
		q.Set("user_id", o.UserID)
	}
	if o.Page > 0 && o.PerPage > 0 {
		q.Set("page", strconv.Itoa(o.Page))
		q.Set("per_page", strconv.Itoa(o.PerPage))
	} else {
		if o.Limit > 0 {
			q.Set("limit", strconv.Itoa(o.Limit))
		}
		if o.Offset > 0 {
			q.Set("offset", strconv.Itoa(o.Offset))
		}
	}
	if o.ActiveOnly != nil {
		q.Set("active_only", strconv.FormatBool(*o.ActiveOnly))
	}
	return q
}

// SessionList is the data of GET /api/chat/sessions.
type SessionList struct {
	Sessions   []model.Session `json:"sessions"`
	TotalCount int             `json:"total_count"`
	Limit      *int            `json:"limit"`
	Offset     *int            `json:"offset"`
}

// SearchResult is the data of GET /api/chat/search.
type SearchResult struct {
	Sessions   []model.Session `json:"sessions"`
	Query      string          `json:"query"`
	TotalCount int             `json:"total_count"`
}

// HistoryMessage is a stored message as returned with a session's history.
type HistoryMessage struct {
	ID              int64                  `json:"id,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	MessageID       string                 `json:"message_id,omitempty"`
	Role            model.Role             `json:"role"`
	Content         string                 `json:"content"`
	MessageType     string                 `json:"message_type,omitempty"`
	Timestamp       string                 `json:"timestamp,omitempty"`
	SourceDocuments []model.SourceDocument `json:"source_documents,omitempty"`
	ErrorInfo       map[string]any         `json:"error_info,omitempty"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
}

// ToMessage converts a stored message to the in-memory form.
func (m HistoryMessage) ToMessage() model.Message {
	id := m.MessageID
	if id == "" && m.ID != 0 {
		id = strconv.FormatInt(m.ID, 10)
	}
	if id == "" {
		id = model.NewMessage(m.Role, "").ID
	}
	return model.Message{
		ID:              id,
		Role:            m.Role,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		SourceDocuments: m.SourceDocuments,
	}
}

// SessionHistory is the body of GET /api/chat/sessions/{id}/full.
type SessionHistory struct {
	Session  model.Session    `json:"session"`
	Messages []HistoryMessage `json:"messages"`
	Metadata map[string]any   `json:"metadata"`
}

// ChatMessages converts the stored messages to the in-memory form.
func (h SessionHistory) ChatMessages() []model.Message {
	out := make([]model.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		out = append(out, m.ToMessage())
	}
	return out
}

// DeleteAllResult is the data of DELETE /api/chat/sessions.
type DeleteAllResult struct {
	DeletedSessions int    `json:"deleted_sessions"`
	Message         string `json:"message"`
}

// CleanupResult is the data of POST /api/chat/cleanup.
type CleanupResult struct {
	DeletedSessions int    `json:"deleted_sessions"`
	CutoffDate      string `json:"cutoff_date"`
	DaysOld         int    `json:"days_old"`
}

// ExportFormat selects the export serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat validates a user-supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportJSON, ExportCSV:
		return ExportFormat(s), nil
	case "":
		return ExportJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want json or csv)", s)
	}
}

// SessionExport is the exported session payload.
type SessionExport struct {
	Format ExportFormat
	Raw    json.RawMessage
}

// CSV returns the CSV text for csv exports.
func (e SessionExport) CSV() (string, bool) {
	if e.Format != ExportCSV {
		return "", false
	}
	var wrapped struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(e.Raw, &wrapped); err != nil {
		return "", false
	}
	return wrapped.Data, true
}

// =============================================================================
// ENDPOINTS
// =============================================================================

func sessionPath(id string, suffix string) string {
	return PathSessions + "/" + pathEscape(id) + suffix
}

// CreateSession creates a session and returns the server's record.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*model.Session, error) {
	var s model.Session
	if _, err := c.doEnvelope(ctx, http.MethodPost, PathSessions, nil, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the authoritative session list.
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) (*SessionList, error) {
	var list SessionList
	if _, err := c.doEnvelope(ctx, http.MethodGet, PathSessions, opts.values(), nil, &list); err != nil {
		return nil, err
	}
	if list.Sessions == nil {
		list.Sessions = []model.Session{}
	}
	return &list, nil
}

// GetSessionFull returns a session with its complete message history.
func (c *Client) GetSessionFull(ctx context.Context, id string) (*SessionHistory, error) {
	var h SessionHistory
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/full"), nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHistory returns the chat service's in-memory history for a session.
func (c *Client) GetHistory(ctx context.Context, id string) ([]HistoryMessage, error) {
	var data struct {
		SessionID string           `json:"session_id"`
		History   []HistoryMessage `json:"history"`
	}
	if _, err := c.doEnvelope(ctx, http.MethodGet, sessionPath(id, "/history"), nil, nil, &data); err != nil {
		return nil, err
	}
	return data.History, nil
}

// UpdateSession applies a partial update and returns the server's record.
func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) (*model.Session, error) {
	var s model.Session
	if _, err := c.doEnvelope(ctx, http.MethodPut, sessionPath(id, ""), nil, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession permanently deletes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.doEnvelope(ctx, http.MethodDelete, sessionPath(id, "/permanent"), nil, nil, nil)
	return err
}

// ClearHistory removes a session's messages but keeps the session.
func (c *Client) ClearHistory(ctx context.Context, id string) error {
	_, err := c.doEnvelope(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil, nil)
	return err
}

// DeleteAllSessions permanently deletes every session.
func (c *Client) DeleteAllSessions(ctx context.Context) (*DeleteAllResult, error) {
	var res DeleteAllResult
	if _, err := c.doEnvelope(ctx, http.MethodDelete, PathSessions, nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SearchSessions finds sessions whose content matches query.
func (c *Client) SearchSessions(ctx context.Context, query string, opts ListOptions) (*SearchResult, error) {
	q := opts.values()
	q.Del("active_only")
	q.Set("query", query)
	var res SearchResult
	if _, err := c.doEnvelope(ctx, http.MethodGet, PathSearch, q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CleanupSessions deletes inactive sessions older than daysOld days.
func (c *Client) CleanupSessions(ctx context.Context, daysOld int) (*CleanupResult, error) {
	if daysOld <= 0 {
		daysOld = DefaultCleanupDays
	}
	q := url.Values{"days_old": {strconv.Itoa(daysOld)}}
	var res CleanupResult
	if _, err := c.doEnvelope(ctx, http.MethodPost, PathCleanup, q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportSession exports a session in the given format.
func (c *Client) ExportSession(ctx context.Context, id string, format ExportFormat) (*SessionExport, error) {
	if format == "" {
		format = ExportJSON
	}
	q := url.Values{"format": {string(format)}}
	env, err := c.doEnvelope(ctx, http.MethodGet, sessionPath(id, "/export"), q, nil, nil)
	if err != nil {
		return nil, err
	}
	return &SessionExport{Format: format, Raw: env.Data}, nil
}
