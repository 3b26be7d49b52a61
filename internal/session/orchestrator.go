// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates session CRUD against the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/notify"
	"github.com/jeranaias/kbchat/internal/state"
)

// ErrNotConfirmed is returned by DeleteAll when the caller has not
// confirmed the destructive operation.
var ErrNotConfirmed = errors.New("delete all sessions requires confirmation")

// ErrNoSession is returned when an operation needs a session id and none
// was given.
var ErrNoSession = errors.New("no session id")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the subset of api.Client the orchestrator uses.
type Backend interface {
	ListSessions(ctx context.Context, opts api.ListOptions) (*api.SessionList, error)
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (*model.Session, error)
	GetSessionFull(ctx context.Context, id string) (*api.SessionHistory, error)
	UpdateSession(ctx context.Context, id string, req api.UpdateSessionRequest) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteAllSessions(ctx context.Context) (*api.DeleteAllResult, error)
	SearchSessions(ctx context.Context, query string, opts api.ListOptions) (*api.SearchResult, error)
	ExportSession(ctx context.Context, id string, format api.ExportFormat) (*api.SessionExport, error)
	CleanupSessions(ctx context.Context, daysOld int) (*api.CleanupResult, error)
}

// StreamCanceller stops the in-flight chat stream and waits for its
// cleanup. *chat.Controller implements it.
type StreamCanceller interface {
	Stop(ctx context.Context) error
}

type nopCanceller struct{}

func (nopCanceller) Stop(context.Context) error { return nil }

// Config holds the orchestrator's collaborators.
type Config struct {
	Store    *state.Store
	Backend  Backend
	Streams  StreamCanceller
	Notifier notify.Notifier
	Logger   *zap.Logger

	// ListOptions filters Refresh.
	ListOptions api.ListOptions
	// DefaultTitle names sessions created without a title.
	DefaultTitle string
	// Now stamps synthesised sessions. Defaults to time.Now.
	Now func() time.Time
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator performs session operations and keeps the store in step
// with the server.
type Orchestrator struct {
	store    *state.Store
	backend  Backend
	streams  StreamCanceller
	notifier notify.Notifier
	logger   *zap.Logger

	listOpts     api.ListOptions
	defaultTitle string
	now          func() time.Time

	refreshes singleflight.Group
	bg        sync.WaitGroup

	// List requests are numbered as they are issued. A response is applied
	// only if nothing newer has been applied and no local mutation happened
	// after it was issued.
	seqMu   sync.Mutex
	issued  uint64
	applied uint64
	mutated uint64
	loading int
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:        cfg.Store,
		backend:      cfg.Backend,
		streams:      cfg.Streams,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		listOpts:     cfg.ListOptions,
		defaultTitle: cfg.DefaultTitle,
		now:          cfg.Now,
	}
	if o.streams == nil {
		o.streams = nopCanceller{}
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("session")
	if strings.TrimSpace(o.defaultTitle) == "" {
		o.defaultTitle = model.DefaultSessionTitle
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Wait blocks until background refreshes started by Create and Cleanup
// have finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// background runs fn detached from the caller's cancellation.
func (o *Orchestrator) background(ctx context.Context, name string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		if err := fn(ctx); err != nil {
			o.logger.Debug("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// fail reports err to the user unless it is a cancellation.
func (o *Orchestrator) fail(title string, err error) {
	if api.IsCancellation(err) {
		return
	}
	o.notifier.Notify(notify.Error(title, api.UserMessage(err)))
}

// =============================================================================
// LIST
// =============================================================================

// Refresh replaces the session list with the server's and reports a
// failure to the user. Concurrent calls share one request, but a call made
// after a local change never joins a request issued before it.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.seqMu.Lock()
	key := "refresh-" + strconv.FormatUint(o.mutated, 10)
	o.seqMu.Unlock()

	_, err, _ := o.refreshes.Do(key, func() (any, error) {
		err := o.refresh(ctx)
		if err != nil {
			o.fail("Failed to load sessions", err)
		}
		return nil, err
	})
	return err
}

// reload is Refresh for follow-ups of other operations: it always issues
// its own request and only logs failures, leaving the local state as is.
func (o *Orchestrator) reload(ctx context.Context) error {
	return o.refresh(ctx)
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	seq := o.beginList()

	list, err := o.backend.ListSessions(ctx, o.listOpts)
	if err != nil {
		o.store.Dispatch(o.endList(seq, nil, false))
		o.logger.Warn("failed to load sessions", zap.Error(err))
		return fmt.Errorf("refresh sessions: %w", err)
	}

	o.store.Dispatch(o.endList(seq, list.Sessions, true))
	o.logger.Debug("sessions loaded", zap.Int("count", len(list.Sessions)), zap.Uint64("seq", seq))
	return nil
}

// beginList numbers a list request and raises the loading flag.
func (o *Orchestrator) beginList() uint64 {
	o.seqMu.Lock()
	o.issued++
	seq := o.issued
	o.loading++
	o.seqMu.Unlock()

	o.store.SetSessionsLoading(true)
	return seq
}

// endList settles request seq. When ok the list is applied unless it is
// stale. The check runs at commit time under the store lock, which orders
// it with the mutations that mark the list as changed.
func (o *Orchestrator) endList(seq uint64, sessions []model.Session, ok bool) state.Action {
	var done bool
	settle := func() bool {
		o.seqMu.Lock()
		defer o.seqMu.Unlock()
		if !done {
			done = true
			o.loading--
		}
		return o.loading == 0
	}
	fresh := func() bool {
		o.seqMu.Lock()
		defer o.seqMu.Unlock()
		if seq <= o.applied || seq <= o.mutated {
			return false
		}
		o.applied = seq
		return true
	}

	var apply state.Action
	if ok {
		apply = state.Guard(fresh, state.SyncSessions(sessions))
	}
	return state.Compose(apply, state.Guard(settle, state.SetSessionsLoading(false)))
}

// changed marks every list request issued so far as stale. It runs inside
// the action that changes the list.
func (o *Orchestrator) changed() bool {
	o.seqMu.Lock()
	o.mutated = o.issued
	o.seqMu.Unlock()
	return true
}

// mutate commits a local change to the session list.
func (o *Orchestrator) mutate(a state.Action) {
	o.store.Dispatch(state.Guard(o.changed, a))
}

// =============================================================================
// CREATE / SELECT
// =============================================================================

// Create makes a new session on the server and adds it to the list. The
// list is not touched until the server answers.
func (o *Orchestrator) Create(ctx context.Context, title string) (*model.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = o.defaultTitle
	}

	created, err := o.backend.CreateSession(ctx, api.CreateSessionRequest{Title: title})
	if err != nil {
		o.logger.Warn("failed to create session", zap.Error(err))
		o.fail("Failed to create session", err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	s := o.synthesise(created, title)
	o.mutate(state.UpsertSession(s))

	o.background(ctx, "refresh after create", o.reload)
	return &s, nil
}

// synthesise fills the fields a create response may omit.
func (o *Orchestrator) synthesise(created *model.Session, title string) model.Session {
	var s model.Session
	if created != nil {
		s = created.Clone()
	}
	if s.SessionID == "" {
		s.SessionID = model.NewProvisionalSessionID(o.now())
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = title
	}
	if s.CreatedAt == "" {
		s.CreatedAt = model.FormatTime(o.now())
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = s.CreatedAt
	}
	// New sessions start active; a response without the flag decodes false.
	s.IsActive = true
	return s
}

// Select makes id the current session and loads its messages. Selecting
// the already selected session does nothing.
//
// A result that arrives after the user has moved to another session is
// discarded.
func (o *Orchestrator) Select(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoSession
	}
	if o.store.Snapshot().IsSelected(id) {
		return nil
	}

	if err := o.streams.Stop(ctx); err != nil {
		return err
	}

	// The previous messages stay on screen until the history arrives.
	o.store.Dispatch(state.SelectSession(model.Session{SessionID: id}))

	full, err := o.backend.GetSessionFull(ctx, id)
	if err != nil {
		o.store.Dispatch(state.ForSession(id, state.Compose(
			state.ClearMessages(),
			state.SetError(api.UserMessage(err)),
		)))
		o.logger.Warn("failed to load session", zap.String("session_id", id), zap.Error(err))
		o.fail("Failed to load session", err)
		return fmt.Errorf("load session %s: %w", id, err)
	}

	load := state.SetMessages(full.ChatMessages())
	if full.Session.SessionID == id {
		load = state.Compose(load, state.SetSelectedSession(&full.Session))
	}
	if st := o.store.Dispatch(state.ForSession(id, load)); !st.IsSelected(id) {
		o.logger.Debug("discarded stale session load", zap.String("session_id", id))
	}
	return nil
}

// NewChat starts a fresh provisional session. The session list is kept.
func (o *Orchestrator) NewChat(ctx context.Context) error {
	if err := o.streams.Stop(ctx); err != nil {
		return err
	}
	o.store.Dispatch(state.StartChat(o.store.FreshSessionID(o.store.Snapshot().SessionID)))
	return nil
}

// =============================================================================
// OPTIMISTIC MUTATIONS
// =============================================================================

// Optimistic describes a local change confirmed by one server request.
type Optimistic struct {
	// Name labels logs and the failure notification.
	Name string
	// Apply is the immediate local mutation.
	Apply state.Action
	// Commit sends the change to the server.
	Commit func(ctx context.Context) error
	// Reconcile restores server truth after a failed commit. Defaults to a
	// fresh list request whose own failure is only logged.
	Reconcile func(ctx context.Context) error
}

// runOptimistic applies op locally, commits it, and on failure reconciles
// with the server and notifies. Nothing is retried.
func (o *Orchestrator) runOptimistic(ctx context.Context, op Optimistic) error {
	o.mutate(op.Apply)

	err := op.Commit(ctx)
	if err == nil {
		return nil
	}

	o.logger.Warn("optimistic update failed", zap.String("op", op.Name), zap.Error(err))
	reconcile := op.Reconcile
	if reconcile == nil {
		reconcile = o.reload
	}
	// The reconcile must run even when ctx was cancelled mid-request, or the
	// optimistic change would stay on screen.
	if rerr := reconcile(context.WithoutCancel(ctx)); rerr != nil {
		o.logger.Warn("reconcile failed", zap.String("op", op.Name), zap.Error(rerr))
	}
	o.fail("Failed to "+op.Name, err)
	return fmt.Errorf("%s: %w", op.Name, err)
}

// mergeServerCopy replaces the local copy with the server's answer.
func (o *Orchestrator) mergeServerCopy(id string, s *model.Session) {
	if s == nil || s.SessionID != id {
		return
	}
	updated := s.Clone()
	o.store.Dispatch(state.PatchSession(id, func(dst *model.Session) {
		*dst = updated.Clone()
	}))
}

// Rename changes a session title.
func (o *Orchestrator) Rename(ctx context.Context, id, title string) error {
	if id == "" {
		return ErrNoSession
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return &api.ValidationError{Detail: "title must not be empty"}
	}

	var updated *model.Session
	err := o.runOptimistic(ctx, Optimistic{
		Name:  "rename session",
		Apply: state.PatchSession(id, func(s *model.Session) { s.Title = title }),
		Commit: func(ctx context.Context) (err error) {
			updated, err = o.backend.UpdateSession(ctx, id, api.UpdateSessionRequest{Title: &title})
			return err
		},
	})
	if err != nil {
		return err
	}
	o.mergeServerCopy(id, updated)
	return nil
}

// SetActive toggles a session's is_active flag.
func (o *Orchestrator) SetActive(ctx context.Context, id string, active bool) error {
	if id == "" {
		return ErrNoSession
	}

	var updated *model.Session
	err := o.runOptimistic(ctx, Optimistic{
		Name:  "update session",
		Apply: state.PatchSession(id, func(s *model.Session) { s.IsActive = active }),
		Commit: func(ctx context.Context) (err error) {
			updated, err = o.backend.UpdateSession(ctx, id, api.UpdateSessionRequest{IsActive: &active})
			return err
		},
	})
	if err != nil {
		return err
	}
	o.mergeServerCopy(id, updated)
	return nil
}

// Delete removes a session permanently. Deleting the current session
// starts a fresh provisional one.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoSession
	}

	snap := o.store.Snapshot()
	current := snap.IsSelected(id) || snap.SessionID == id
	if current {
		if err := o.streams.Stop(ctx); err != nil {
			return err
		}
	}

	return o.runOptimistic(ctx, Optimistic{
		Name:  "delete session",
		Apply: state.RemoveSession(id, o.store.FreshSessionID(snap.SessionID)),
		Commit: func(ctx context.Context) error {
			return o.backend.DeleteSession(ctx, id)
		},
	})
}

// DeleteAll removes every session. It refuses unless confirmed is true.
func (o *Orchestrator) DeleteAll(ctx context.Context, confirmed bool) (int, error) {
	if !confirmed {
		return 0, ErrNotConfirmed
	}
	if err := o.streams.Stop(ctx); err != nil {
		return 0, err
	}

	res, err := o.backend.DeleteAllSessions(ctx)
	if err != nil {
		o.logger.Warn("failed to delete all sessions", zap.Error(err))
		o.fail("Failed to delete sessions", err)
		return 0, fmt.Errorf("delete all sessions: %w", err)
	}

	o.mutate(state.ClearSessions(o.store.FreshSessionID(o.store.Snapshot().SessionID)))

	n := 0
	if res != nil {
		n = res.DeletedSessions
	}
	o.notifier.Notify(notify.Success("Sessions deleted", fmt.Sprintf("Deleted %d sessions.", n)))
	return n, nil
}

// =============================================================================
// PASS-THROUGH READS
// =============================================================================

// Search finds sessions whose title or messages match query.
func (o *Orchestrator) Search(ctx context.Context, query string) ([]model.Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &api.ValidationError{Detail: "query must not be empty"}
	}
	res, err := o.backend.SearchSessions(ctx, query, o.listOpts)
	if err != nil {
		o.fail("Search failed", err)
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	if res.Sessions == nil {
		return []model.Session{}, nil
	}
	return res.Sessions, nil
}

// Export returns a session in the given format.
func (o *Orchestrator) Export(ctx context.Context, id string, format api.ExportFormat) (*api.SessionExport, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	exp, err := o.backend.ExportSession(ctx, id, format)
	if err != nil {
		o.fail("Export failed", err)
		return nil, fmt.Errorf("export session %s: %w", id, err)
	}
	return exp, nil
}

// Cleanup deletes sessions older than days and refreshes the list in the
// background.
func (o *Orchestrator) Cleanup(ctx context.Context, days int) (*api.CleanupResult, error) {
	res, err := o.backend.CleanupSessions(ctx, days)
	if err != nil {
		o.fail("Cleanup failed", err)
		return nil, fmt.Errorf("cleanup sessions: %w", err)
	}
	if res.DaysOld == 0 {
		res.DaysOld = days
	}
	o.notifier.Notify(notify.Success("Cleanup complete",
		fmt.Sprintf("Deleted %d sessions older than %d days.", res.DeletedSessions, res.DaysOld)))
	// Lists requested before the cleanup predate it.
	o.mutate(state.Compose())
	o.background(ctx, "refresh after cleanup", o.reload)
	return res, nil
}
