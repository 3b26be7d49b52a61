// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers transient user notifications.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// NOTIFICATION TYPES
// =============================================================================

// Kind represents the type of notification.
type Kind int

const (
	// KindInfo is an informational notification.
	KindInfo Kind = iota
	// KindSuccess confirms a completed operation.
	KindSuccess
	// KindWarning flags a non-fatal problem.
	KindWarning
	// KindError reports a failed operation.
	KindError
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return "info"
	}
}

// Display durations per kind. Errors stay longer so they can be read.
const (
	DefaultDuration = 4 * time.Second
	WarningDuration = 6 * time.Second
	ErrorDuration   = 8 * time.Second
)

// Notification is one transient message.
type Notification struct {
	Kind     Kind
	Title    string
	Message  string
	Duration time.Duration
}

// New creates a notification with the default duration for kind.
func New(kind Kind, title, message string) Notification {
	d := DefaultDuration
	switch kind {
	case KindWarning:
		d = WarningDuration
	case KindError:
		d = ErrorDuration
	}
	return Notification{Kind: kind, Title: title, Message: message, Duration: d}
}

// Info creates an informational notification.
func Info(title, message string) Notification { return New(KindInfo, title, message) }

// Success creates a success notification.
func Success(title, message string) Notification { return New(KindSuccess, title, message) }

// Warning creates a warning notification.
func Warning(title, message string) Notification { return New(KindWarning, title, message) }

// Error creates an error notification.
func Error(title, message string) Notification { return New(KindError, title, message) }

// =============================================================================
// NOTIFIERS
// =============================================================================

// Notifier shows notifications to the user. Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Nop discards every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(Notification) {}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a notifier that logs at a level matching the kind.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("notify")}
}

// Notify logs n.
func (l *Log) Notify(n Notification) {
	fields := []zap.Field{zap.String("kind", n.Kind.String()), zap.String("title", n.Title)}
	switch n.Kind {
	case KindError:
		l.logger.Error(n.Message, fields...)
	case KindWarning:
		l.logger.Warn(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
}

// Channel forwards notifications to a buffered channel, dropping them when
// the buffer is full.
type Channel struct {
	ch chan Notification
}

// NewChannel creates a channel notifier with the given buffer size.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Notification, size)}
}

// Notify enqueues n without blocking.
func (c *Channel) Notify(n Notification) {
	select {
	case c.ch <- n:
	default:
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Notification {
	return c.ch
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify calls every notifier in order.
func (m Multi) Notify(n Notification) {
	for _, nf := range m {
		if nf != nil {
			nf.Notify(n)
		}
	}
}

// Recorder keeps every notification. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

// Notify records n.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.list))
	copy(out, r.list)
	return out
}

// Count returns the number of recorded notifications of kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.list {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) == 0 {
		return Notification{}, false
	}
	return r.list[len(r.list)-1], true
}
