// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat controller.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/state"
	"github.com/jeranaias/kbchat/internal/stream"
)

// Fixed assistant texts used for the terminal message of a turn.
const (
	PlaceholderText   = "Awaiting response..."
	CancelledText     = "The message was cancelled."
	ErrorText         = "Sorry, an error occurred while processing your message."
	EmptyResponseText = "The assistant returned an empty response."
)

// Sender performs a blocking (non-streaming) chat request.
type Sender interface {
	SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// Config holds the controller's collaborators.
type Config struct {
	Store    *state.Store
	Opener   stream.Opener
	Sender   Sender // optional; required only by SendSync
	Notifier notify.Notifier
	Logger   *zap.Logger

	// UpdateRate caps how often token chunks are written to the store.
	// Zero writes every token. Content skipped by the limiter is written
	// before the turn ends.
	UpdateRate  rate.Limit
	UpdateBurst int
}

// Controller turns one user utterance into a reconciled conversation turn.
// Only one turn runs at a time; a new Send cancels the previous one.
type Controller struct {
	store    *state.Store
	opener   stream.Opener
	sender   Sender
	notifier notify.Notifier
	logger   *zap.Logger

	updateRate  rate.Limit
	updateBurst int

	turns *turnManager
}

// New creates a controller.
func New(cfg Config) *Controller {
	c := &Controller{
		store:       cfg.Store,
		opener:      cfg.Opener,
		sender:      cfg.Sender,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		updateRate:  cfg.UpdateRate,
		updateBurst: cfg.UpdateBurst,
		turns:       newTurnManager(),
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("chat")
	if c.updateBurst < 1 {
		c.updateBurst = 1
	}
	return c
}

// WithUpdateRate enables token coalescing at the given rate.
func (c *Controller) WithUpdateRate(r rate.Limit, burst int) *Controller {
	c.updateRate = r
	c.updateBurst = max(burst, 1)
	return c
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// Send streams an answer to text. Whitespace-only input is ignored.
//
// The returned error is nil on success, an *api.CancellationError when the
// turn was cancelled, or the failure that ended the turn. In every case the
// message list ends with exactly one user message and one terminal
// assistant message for this turn, and the loading flag is cleared.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, t, placeholderID := c.start(ctx, text)
	defer c.end(t)

	sessionID := c.store.Snapshot().SessionID
	log := c.logger.With(zap.Uint64("turn", t.id), zap.String("session_id", sessionID))
	log.Debug("stream started")

	out := c.consume(ctx, api.ChatRequest{Message: text, SessionID: sessionID}, placeholderID)
	return c.settle(ctx, log, placeholderID, out)
}

// SendSync answers text through the blocking endpoint with the same
// optimistic protocol as Send.
func (c *Controller) SendSync(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.sender == nil {
		return errors.New("chat: no blocking sender configured")
	}
	ctx, t, placeholderID := c.start(ctx, text)
	defer c.end(t)

	sessionID := c.store.Snapshot().SessionID
	log := c.logger.With(zap.Uint64("turn", t.id), zap.String("session_id", sessionID))

	var out outcome
	resp, err := c.sender.SendMessage(ctx, api.ChatRequest{Message: text, SessionID: sessionID})
	if err != nil {
		out.err = err
	} else {
		out.content = resp.Response
		out.docs = resp.SourceDocuments
		out.final = true
	}
	return c.settle(ctx, log, placeholderID, out)
}

// Cancel aborts the active turn. The turn still closes with the
// cancellation message.
func (c *Controller) Cancel() {
	c.turns.cancel()
}

// Stop cancels the active turn and waits until its cleanup has finished or
// ctx ends.
func (c *Controller) Stop(ctx context.Context) error {
	t := c.turns.cancel()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether a turn is in flight.
func (c *Controller) Active() bool {
	return c.turns.active()
}

// start cancels and awaits the previous turn, then appends the user message
// and the placeholder.
func (c *Controller) start(parent context.Context, text string) (context.Context, *turn, string) {
	ctx, t, prev := c.turns.begin(parent)
	if prev != nil {
		<-prev.done
	}

	placeholder := model.NewAssistantMessage(PlaceholderText)
	c.store.Dispatch(state.Compose(
		state.AddMessage(model.NewUserMessage(text)),
		state.AddMessage(placeholder),
		state.SetError(""),
		state.SetLoading(true),
	))
	return ctx, t, placeholder.ID
}

// end always runs: loading is cleared before the turn is released so a
// waiting Send observes the final state of this one.
func (c *Controller) end(t *turn) {
	c.store.SetLoading(false)
	c.turns.finish(t)
}

// =============================================================================
// STREAM CONSUMPTION
// =============================================================================

// outcome is what a turn produced before settling.
type outcome struct {
	content string
	docs    []model.SourceDocument
	final   bool
	chunks  int
	err     error
}

// consume reads the stream, writing progress into the placeholder.
func (c *Controller) consume(ctx context.Context, req api.ChatRequest, placeholderID string) outcome {
	var out outcome

	s, err := c.opener.Open(ctx, req)
	if err != nil {
		out.err = err
		return out
	}
	defer s.Close()

	var limiter *rate.Limiter
	if c.updateRate > 0 {
		limiter = rate.NewLimiter(c.updateRate, c.updateBurst)
	}

	var acc strings.Builder
	pending := false

	for s.Next() {
		chunk := s.Chunk()
		out.chunks++

		switch chunk.Type {
		case model.ChunkToken:
			if out.final {
				continue
			}
			acc.WriteString(chunk.Token)
			if limiter != nil && !limiter.Allow() {
				pending = true
				continue
			}
			pending = false
			c.applyContent(ctx, placeholderID, acc.String(), nil)

		case model.ChunkFinal:
			out.final = true
			pending = false
			out.content = chunk.Response
			out.docs = chunk.SourceDocuments
			if out.docs == nil {
				out.docs = []model.SourceDocument{}
			}
			c.applyContent(ctx, placeholderID, out.content, out.docs)

		case model.ChunkError:
			out.err = &api.StreamProtocolError{Message: chunk.ErrorMessage(), Partial: acc.String()}
			return out

		default:
			c.logger.Warn("ignoring unknown chunk type", zap.String("type", string(chunk.Type)))
		}
	}
	if err := s.Err(); err != nil {
		out.err = err
		return out
	}

	if !out.final {
		out.content = acc.String()
		if pending {
			c.applyContent(ctx, placeholderID, out.content, nil)
		}
	}
	return out
}

// applyContent overwrites the placeholder while it is still the tail of
// the list and the turn has not been cancelled.
func (c *Controller) applyContent(ctx context.Context, placeholderID, content string, docs []model.SourceDocument) {
	live := func() bool { return ctx.Err() == nil }
	c.store.Dispatch(state.Guard(live,
		state.PatchTailMessage(placeholderID, state.MessagePatch{Content: &content, SourceDocuments: docs})))
}

// settle writes the terminal assistant message for the turn.
func (c *Controller) settle(ctx context.Context, log *zap.Logger, placeholderID string, out outcome) error {
	start := time.Now()
	defer func() {
		log.Debug("turn settled", zap.Int("chunks", out.chunks), zap.Duration("settle", time.Since(start)))
	}()

	switch {
	case out.err == nil:
		content := out.content
		if strings.TrimSpace(content) == "" {
			content = EmptyResponseText
		}
		c.replacePlaceholder(placeholderID, content, out.docs)
		log.Debug("stream completed", zap.Bool("final", out.final))
		return nil

	case api.IsCancellation(out.err) || ctx.Err() != nil:
		c.replacePlaceholder(placeholderID, CancelledText, nil)
		log.Debug("stream cancelled")
		var ce *api.CancellationError
		if errors.As(out.err, &ce) {
			return ce
		}
		return &api.CancellationError{Err: context.Cause(ctx)}

	default:
		c.replacePlaceholder(placeholderID, ErrorText, nil)
		msg := api.UserMessage(out.err)
		c.store.SetError(msg)
		c.notifier.Notify(notify.Error("Message failed", msg))
		log.Warn("stream failed", zap.Error(out.err))
		return out.err
	}
}

// replacePlaceholder removes the placeholder and appends the terminal
// assistant message. Nothing happens when the placeholder is gone, which
// means the message list was replaced (session switch or reset).
func (c *Controller) replacePlaceholder(placeholderID, content string, docs []model.SourceDocument) {
	msg := model.NewAssistantMessage(content)
	msg.ID = placeholderID
	msg.SourceDocuments = docs
	c.store.Dispatch(state.ReplaceMessage(placeholderID, msg))
}
