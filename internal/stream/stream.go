// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes the chat endpoint's server-sent token stream.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
)

// STREAMING: Single-pass SSE line parsing with guaranteed body release

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxLineSize is the maximum allowed size for a single `data:` line (1MB).
const MaxLineSize = 1024 * 1024

// doneSentinel terminates the stream without producing a chunk.
const doneSentinel = "[DONE]"

// =============================================================================
// TRANSPORT
// =============================================================================

// Opener starts a chat stream. *Transport implements it; tests substitute
// fakes that feed canned bodies through New.
type Opener interface {
	Open(ctx context.Context, req api.ChatRequest) (*Stream, error)
}

// Transport opens streams through an api.Client so the bearer token and
// the 401 policy apply to streaming exactly as to every other request.
type Transport struct {
	client *api.Client
	logger *zap.Logger
}

// NewTransport creates a transport over client.
func NewTransport(client *api.Client, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{client: client, logger: logger.Named("stream")}
}

// Open posts req to the streaming endpoint. A non-2xx status fails here,
// before any chunk is produced, with the api error taxonomy.
func (t *Transport) Open(ctx context.Context, req api.ChatRequest) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp, err := t.client.OpenStream(ctx, api.PathChatStream, req)
	if err != nil {
		return nil, err
	}
	return New(ctx, resp.Body, t.logger), nil
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a single-pass sequence of chunks read from a response body.
//
// Use it like bufio.Scanner:
//
//	defer s.Close()
//	for s.Next() {
//	    handle(s.Chunk())
//	}
//	if err := s.Err(); err != nil { ... }
//
// The body is released on every exit path: end of input, the [DONE]
// sentinel, an error, context cancellation, or an explicit Close.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger

	chunk  model.StreamChunk
	err    error
	done   bool
	chunks int

	closeOnce sync.Once
	closeErr  error
	stopWatch func() bool
}

// New wraps body. Cancelling ctx closes the body, which unblocks a pending
// read; Err then reports an *api.CancellationError.
func New(ctx context.Context, body io.ReadCloser, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Incremental UTF-8 decoding: sequences split across reads are
	// reassembled and invalid bytes become U+FFFD.
	decoded := transform.NewReader(body, unicode.UTF8.NewDecoder())

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	s := &Stream{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		logger:  logger,
	}
	s.stopWatch = context.AfterFunc(ctx, s.closeBody)
	return s
}

// Next advances to the next chunk. It returns false when the stream is
// finished, failed or was cancelled; the stream is closed by then.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.fail(&api.CancellationError{Err: err})
			return false
		}

		if !s.scanner.Scan() {
			s.scanFailed(s.scanner.Err())
			return false
		}

		payload, ok := dataPayload(s.scanner.Text())
		if !ok {
			continue
		}
		if payload == doneSentinel {
			s.finish()
			return false
		}

		var c model.StreamChunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			s.logger.Warn("skipping malformed stream line",
				zap.Error(err),
				zap.Int("bytes", len(payload)),
			)
			continue
		}

		// Chunks read after cancellation must not reach the consumer.
		if err := s.ctx.Err(); err != nil {
			s.fail(&api.CancellationError{Err: err})
			return false
		}

		s.chunk = c
		s.chunks++
		return true
	}
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() model.StreamChunk {
	return s.chunk
}

// Err returns the error that ended the stream, or nil after a normal end.
func (s *Stream) Err() error {
	return s.err
}

// Count returns the number of chunks produced so far.
func (s *Stream) Count() int {
	return s.chunks
}

// Close releases the response body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.stopWatch()
	s.closeBody()
	return s.closeErr
}

// closeBody runs at most once, either from Close or from the context
// watcher goroutine.
func (s *Stream) closeBody() {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
}

// All returns the stream as a range-over-func sequence. A terminal error is
// yielded once as the final element. Breaking out of the loop closes the
// stream.
func (s *Stream) All() iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.chunk, nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(model.StreamChunk{}, err)
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Stream) finish() {
	s.done = true
	s.Close()
}

func (s *Stream) fail(err error) {
	s.err = err
	s.finish()
}

// scanFailed classifies the end of input.
func (s *Stream) scanFailed(err error) {
	switch {
	case s.ctx.Err() != nil:
		s.fail(&api.CancellationError{Err: s.ctx.Err()})
	case errors.Is(err, bufio.ErrTooLong):
		s.fail(&api.StreamProtocolError{
			Message: fmt.Sprintf("line exceeds %d bytes", MaxLineSize),
			Err:     err,
		})
	case err != nil:
		// The connection dropped mid-body; the stream itself was well formed.
		s.fail(&api.NetworkError{Op: "read " + api.PathChatStream, Err: err})
	default:
		s.finish()
	}
}

// dataPayload extracts the payload of an SSE `data:` line. Other fields
// (event:, id:, retry:, comments) and blank separators are skipped.
func dataPayload(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, " ")
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
