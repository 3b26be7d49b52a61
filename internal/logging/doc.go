// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds kbchat's zap logger.
//
// The TUI owns the terminal, so logs go to ~/.kbchat/kbchat.log by default.
// Components receive a *zap.Logger in their constructor and name it after
// themselves; nothing uses the zap globals.
package logging
