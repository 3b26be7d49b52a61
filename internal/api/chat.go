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
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/kbchat/internal/model"
)

// Chat endpoint paths.
const (
	PathChatSend   = "/api/chat/send"
	PathChatStream = "/api/chat/stream"
	PathChatWS     = "/api/chat/ws/"
	PathChatHealth = "/api/chat/health"
)

// ChatRequest is the body of both the blocking and the streaming send.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate rejects blank messages before they reach the server.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ChatResponse is the answer to a blocking send.
type ChatResponse struct {
	Response        string                 `json:"response"`
	SourceDocuments []model.SourceDocument `json:"source_documents,omitempty"`
	SessionID       string                 `json:"session_id"`
	Timestamp       string                 `json:"timestamp,omitempty"`
}

// chatResponseWire accepts both the flat and the enveloped answer shapes.
type chatResponseWire struct {
	ChatResponse
	Data *ChatResponse `json:"data"`
}

func (w chatResponseWire) resolve() *ChatResponse {
	if w.Data != nil {
		return w.Data
	}
	r := w.ChatResponse
	return &r
}

// SendMessage posts a message and waits for the complete answer.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var wire chatResponseWire
	if err := c.do(ctx, http.MethodPost, PathChatSend, nil, req, &wire); err != nil {
		return nil, err
	}
	return wire.resolve(), nil
}

// =============================================================================
// WEBSOCKET CHAT
// =============================================================================

// wsURL converts the HTTP base URL to its websocket equivalent.
func (c *Client) wsURL(clientID int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + PathChatWS + strconv.Itoa(clientID)
	return u.String(), nil
}

// SendOverWebSocket sends one message over the chat websocket and waits for
// the reply. The connection is closed before returning.
func (c *Client) SendOverWebSocket(ctx context.Context, clientID int, req ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target, err := c.wsURL(clientID)
	if err != nil {
		return nil, err
	}
	op := "WS " + PathChatWS + strconv.Itoa(clientID)

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	if c.tokens != nil {
		if tok := strings.TrimSpace(c.tokens.Token()); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.Timeout(),
	}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := readResponse(resp)
			return nil, c.handleErrorResponse(resp.StatusCode, body)
		}
		if ctx.Err() != nil {
			return nil, &CancellationError{Err: ctx.Err()}
		}
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer conn.Close()

	// The read blocks until the server answers; unblock it on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, c.wsError(ctx, op, err)
	}

	// The server may broadcast plain-text notices; skip until a JSON reply.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, c.wsError(ctx, op, err)
		}
		var wire chatResponseWire
		if json.Unmarshal(data, &wire) != nil {
			c.logger.Debug("ignoring non-JSON websocket frame", zap.Int("bytes", len(data)))
			continue
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return wire.resolve(), nil
	}
}

func (c *Client) wsError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return &CancellationError{Err: ctx.Err()}
	}
	return &NetworkError{Op: op, Err: err}
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthStatus is the chat service health report.
type HealthStatus struct {
	Status      string         `json:"status"`
	ChatService map[string]any `json:"chat_service,omitempty"`
	Database    map[string]any `json:"database,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Healthy reports whether the overall status is "healthy".
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// Health fetches the chat service health report.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.do(ctx, http.MethodGet, PathChatHealth, nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
