// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers transient user notifications.
//
// Controllers report failures and completed operations through a Notifier.
// The TUI turns them into toasts, the CLI prints them, and tests record
// them.
//
// # Key Types
//
//   - Notification: Kind, title, message and display duration
//   - Notifier: Non-blocking sink interface
//   - Channel, Log, Recorder, Multi, Nop: Sink implementations
package notify
