// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrUnauthorized is matched by any 401 response error.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyMessage is returned when a chat message is blank.
	ErrEmptyMessage = errors.New("message must not be empty")
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// NetworkError means no usable response was received: the connection failed,
// timed out, or the stream could not be opened.
type NetworkError struct {
	Op  string // e.g. "POST /api/chat/stream"
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a client-side timeout.
func (e *NetworkError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.Is(e.Err, context.DeadlineExceeded) || (errors.As(e.Err, &t) && t.Timeout())
}

// HTTPStatusError is a 4xx/5xx response with its parsed body.
type HTTPStatusError struct {
	Status int
	Detail string
	Body   []byte
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}

// Is allows 401 errors to match ErrUnauthorized.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// FieldError is one entry of a 422 validation detail list.
type FieldError struct {
	Location []any `json:"loc"`
	Message  string `json:"msg"`
	Type     string `json:"type"`
}

// Field returns the dotted location of the failing field.
func (f FieldError) Field() string {
	parts := make([]string, 0, len(f.Location))
	for _, p := range f.Location {
		if s := fmt.Sprint(p); s != "body" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

// ValidationError is a 422 response carrying the server's human-readable
// detail.
type ValidationError struct {
	Detail string
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail
}

// StreamProtocolError is a malformed stream or an error-typed chunk.
type StreamProtocolError struct {
	Message string
	Partial string // content received before the failure
	Err     error
}

// Error implements the error interface.
func (e *StreamProtocolError) Error() string {
	msg := "stream error: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Partial != "" {
		msg += fmt.Sprintf(" (partial content received: %d chars)", len(e.Partial))
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StreamProtocolError) Unwrap() error {
	return e.Err
}

// CancellationError is a user-initiated abort. It is not a failure.
type CancellationError struct {
	Err error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return "request cancelled"
}

// Unwrap returns the underlying error, usually context.Canceled.
func (e *CancellationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// HELPERS
// =============================================================================

// IsCancellation reports whether err represents a user-initiated abort.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce) || errors.Is(err, context.Canceled)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity
	}
	return 0
}

// UserMessage maps err to the text shown in a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve  *ValidationError
		se  *HTTPStatusError
		ne  *NetworkError
		spe *StreamProtocolError
	)
	switch {
	case IsCancellation(err):
		return "The request was cancelled."
	case errors.As(err, &ve):
		return "Invalid input: " + ve.Detail
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	case errors.As(err, &se):
		if se.Detail != "" {
			return fmt.Sprintf("Server error (%d): %s", se.Status, se.Detail)
		}
		return fmt.Sprintf("Server error (%d).", se.Status)
	case errors.As(err, &ne):
		if ne.Timeout() {
			return "The server did not respond in time."
		}
		return "Could not reach the server. Check that the backend is running."
	case errors.As(err, &spe):
		return "The response stream failed: " + spe.Message
	default:
		return err.Error()
	}
}

// =============================================================================
// ERROR RESPONSE PARSING
// =============================================================================

// errorBody covers FastAPI's {"detail": ...} and the {success,message} envelope.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// parseErrorResponse converts a non-2xx body into the error taxonomy.
func parseErrorResponse(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	detail, fields := decodeDetail(eb.Detail)
	if detail == "" {
		detail = firstNonEmpty(eb.Message, eb.Error)
	}
	if detail == "" && len(body) > 0 && !json.Valid(body) {
		detail = strings.TrimSpace(truncate(string(body), 200))
	}

	if status == http.StatusUnprocessableEntity {
		return &ValidationError{Detail: detail, Fields: fields}
	}
	return &HTTPStatusError{Status: status, Detail: detail, Body: body}
}

// decodeDetail reads a detail that is either a string or a list of field
// errors.
func decodeDetail(raw json.RawMessage) (string, []FieldError) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var fields []FieldError
	if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			if name := f.Field(); name != "" {
				msgs = append(msgs, name+": "+f.Message)
			} else {
				msgs = append(msgs, f.Message)
			}
		}
		return strings.Join(msgs, "; "), fields
	}
	return string(raw), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
