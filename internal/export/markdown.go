// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown format.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	var sb strings.Builder
	exported := e.options.now()

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title()))
		fmt.Fprintf(&sb, "session_id: %s\n", escapeYAML(t.Session.SessionID))
		if t.Session.CreatedAt != "" {
			fmt.Fprintf(&sb, "created: %s\n", escapeYAML(t.Session.CreatedAt))
		}
		if t.Session.UpdatedAt != "" {
			fmt.Fprintf(&sb, "updated: %s\n", escapeYAML(t.Session.UpdatedAt))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", exported.Format(time.RFC3339))
		sb.WriteString("generator: kbchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	for i, msg := range t.Messages {
		if e.options.IncludeTimestamps && msg.Timestamp != "" {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role),
				formatTimestamp(msg.Timestamp, "2006-01-02 15:04:05"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if e.options.IncludeSources && msg.Role == model.RoleAssistant && len(msg.SourceDocuments) > 0 {
			sb.WriteString(e.formatSources(msg.SourceDocuments))
			sb.WriteString("\n")
		}

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from kbchat on %s*\n", exported.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// formatSources renders cited documents as a numbered list.
func (e *MarkdownExporter) formatSources(docs []model.SourceDocument) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for i, d := range docs {
		label := d.Source()
		if label == "" {
			label = fmt.Sprintf("Document %d", i+1)
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, escapeMarkdown(label))
		if excerpt := excerpt(d.Content, 160); excerpt != "" {
			fmt.Fprintf(&sb, ": %s", excerpt)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// excerpt collapses whitespace and truncates s to maxRunes.
func excerpt(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes-3]) + "..."
	}
	return s
}

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	return strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	).Replace(s)
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
