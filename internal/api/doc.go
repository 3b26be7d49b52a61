// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the chatbot admin backend.
//
// It wraps the backend's REST contract (chat, sessions, LLM and embedding
// provider configuration, knowledge base documents) and the raw streaming
// endpoint consumed by package stream. Every failure is mapped onto a small
// error taxonomy so callers can branch with errors.As.
//
// # Key Types
//
//   - Client: Configured base URL, bearer token source and timeouts
//   - TokenStore: Where the bearer token is read from and cleared on 401
//   - NetworkError, HTTPStatusError, ValidationError: Request failures
//   - StreamProtocolError, CancellationError: Streaming failures and aborts
//
// # Usage
//
//	client := api.NewClient(api.BaseURLFromEnv()).
//	    WithTokenStore(store).
//	    WithUnauthorizedHandler(func() { fmt.Println("please log in") })
//	list, err := client.ListSessions(ctx, api.ListOptions{})
//
// Non-streaming requests are bounded by DefaultTimeout. Streaming requests
// have no timeout and run until the server closes or the context ends.
package api
