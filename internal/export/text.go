// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/kbchat/internal/model"
)

// TextExporter exports transcripts as plain text.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a new plain-text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export converts a transcript to "Role: content" paragraphs.
func (e *TextExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	var sb strings.Builder
	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "%s\n%s\n\n", t.Title(), strings.Repeat("=", len([]rune(t.Title()))))
	}
	for _, msg := range t.Messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && msg.Timestamp != "" {
			label += " [" + formatTimestamp(msg.Timestamp, "15:04:05") + "]"
		}
		fmt.Fprintf(&sb, "%s:\n%s\n", label, strings.TrimSpace(msg.Content))

		if e.options.IncludeSources && msg.Role == model.RoleAssistant {
			for i, d := range msg.SourceDocuments {
				if src := d.Source(); src != "" {
					fmt.Fprintf(&sb, "  [%d] %s\n", i+1, src)
				}
			}
		}
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain"
}
