// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders session transcripts to files.
//
// A Transcript is a session plus its messages as loaded from the backend.
// Exporters turn it into Markdown, HTML, JSON or plain text; Highlight
// colours JSON and TOML for terminal output.
//
// # Key Types
//
//   - Transcript: Session and messages to render
//   - Exporter: Format interface
//   - Options: Output directory, metadata and source toggles
//
// # Supported Formats
//
//   - Markdown: Human-readable with YAML front matter
//   - HTML: Styled for browsers, code fences highlighted
//   - JSON: Machine-readable, complete
//   - Text: Plain transcript for pasting
//
// # Usage
//
//	exp, err := export.ForFormat("md", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(transcript, exp, nil)
package export
