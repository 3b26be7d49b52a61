// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat controller.
//
// A Send appends the user message and an "Awaiting response..." placeholder
// to the store, consumes the token stream into the placeholder, and closes
// the turn with exactly one terminal assistant message: the answer, a
// cancellation notice, or an error notice. The final chunk is authoritative
// over accumulated tokens.
//
// # Key Types
//
//   - Controller: Send, SendSync, Cancel, Stop, Active
//   - Config: Store, stream opener, blocking sender, notifier, logger
//
// # Usage
//
//	ctrl := chat.New(chat.Config{
//	    Store:    store,
//	    Opener:   stream.NewTransport(client, logger),
//	    Notifier: notifier,
//	    Logger:   logger,
//	})
//	go ctrl.Send(ctx, "What is our retry policy?")
//
// Starting a new Send cancels the previous turn and waits for it to close
// before appending the new messages, so turns never interleave in the list.
package chat
