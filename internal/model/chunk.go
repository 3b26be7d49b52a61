// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

// ChunkType tags a streaming chunk.
type ChunkType string

// Chunk types emitted by the streaming endpoint.
const (
	ChunkToken ChunkType = "token"
	ChunkFinal ChunkType = "final"
	ChunkError ChunkType = "error"
)

// StreamChunk is one decoded `data:` payload of the chat stream.
//
// Only the fields relevant to Type are populated. SessionID and Index are
// decoded for logging but carry no meaning for the message list.
type StreamChunk struct {
	Type            ChunkType        `json:"type"`
	Token           string           `json:"token,omitempty"`
	Response        string           `json:"response,omitempty"`
	SourceDocuments []SourceDocument `json:"source_documents,omitempty"`
	Error           string           `json:"error,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	Index           *int             `json:"index,omitempty"`
}

// ErrorMessage returns the failure text of an error chunk. The backend puts
// the exception text in Error and a user-facing sentence in Response.
func (c StreamChunk) ErrorMessage() string {
	if c.Error != "" {
		return c.Error
	}
	if c.Response != "" {
		return c.Response
	}
	return "unknown stream error"
}
