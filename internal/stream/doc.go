// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes the chat endpoint's server-sent token stream.
//
// The backend answers POST /api/chat/stream with `data: {json}` lines
// separated by blank lines and terminated by `data: [DONE]`. Each payload
// is a token, final or error chunk (model.StreamChunk).
//
// # Key Types
//
//   - Transport: Opens a stream through an api.Client
//   - Stream: Single-pass chunk sequence with Next/Chunk/Err/Close and All
//   - Opener: Interface satisfied by Transport, used by the chat controller
//
// # Usage
//
//	s, err := stream.NewTransport(client, logger).Open(ctx, api.ChatRequest{Message: "hi"})
//	if err != nil {
//	    return err
//	}
//	for chunk, err := range s.All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Token)
//	}
//
// Cancelling the context aborts the pending read; the stream then ends
// with an *api.CancellationError.
package stream
