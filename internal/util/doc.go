// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across kbchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, StringWidth, PadRight: terminal-cell aware layout
//   - FirstLine: first non-blank line, for previews
//
// File Operations:
//   - AtomicWriteFile, AtomicWriteFileWithDir: crash-safe writes with fsync
//
// # Usage
//
//	title := util.TruncateWidth(session.DisplayTitle(), 24)
//	err := util.AtomicWriteFileWithDir(path, data, 0600, 0700)
package util
