// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a single HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	title := html.EscapeString(t.Title())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<meta name=\"generator\" content=\"kbchat\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", exportedAt(e.options))
	sb.WriteString(htmlCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	fmt.Fprintf(&sb, "<header><h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"meta\">")
		if t.Session.SessionID != "" {
			fmt.Fprintf(&sb, "<span>Session: %s</span>", html.EscapeString(t.Session.SessionID))
		}
		if t.Session.CreatedAt != "" {
			fmt.Fprintf(&sb, "<span>Created: %s</span>", html.EscapeString(formatTimestamp(t.Session.CreatedAt, "Jan 2, 2006 3:04 PM")))
		}
		fmt.Fprintf(&sb, "<span>Messages: %d</span>", len(t.Messages))
		sb.WriteString("</div>")
	}
	sb.WriteString("</header>\n<main>\n")

	for _, msg := range t.Messages {
		sb.WriteString(e.renderMessage(msg))
	}

	sb.WriteString("</main>\n")
	fmt.Fprintf(&sb, "<footer>Exported from kbchat on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) renderMessage(msg model.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<div class=\"message %s\">\n<div class=\"message-header\"><span class=\"role\">%s</span>",
		html.EscapeString(string(msg.Role)), html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps && msg.Timestamp != "" {
		fmt.Fprintf(&sb, "<span class=\"time\">%s</span>", html.EscapeString(formatTimestamp(msg.Timestamp, "15:04:05")))
	}
	sb.WriteString("</div>\n<div class=\"content\">\n")
	sb.WriteString(e.formatContent(msg.Content))
	sb.WriteString("</div>\n")

	if e.options.IncludeSources && msg.Role == model.RoleAssistant && len(msg.SourceDocuments) > 0 {
		sb.WriteString("<details class=\"sources\"><summary>Sources</summary><ol>\n")
		for i, d := range msg.SourceDocuments {
			label := d.Source()
			if label == "" {
				label = fmt.Sprintf("Document %d", i+1)
			}
			fmt.Fprintf(&sb, "<li><strong>%s</strong> %s</li>\n",
				html.EscapeString(label), html.EscapeString(excerpt(d.Content, 240)))
		}
		sb.WriteString("</ol></details>\n")
	}
	sb.WriteString("</div>\n")
	return sb.String()
}

var (
	codeFenceRegex  = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`\n]+)`")
)

// formatContent renders fenced code through chroma and the remaining text as
// escaped paragraphs.
func (e *HTMLExporter) formatContent(content string) string {
	var sb strings.Builder
	rest := content
	for {
		loc := codeFenceRegex.FindStringSubmatchIndex(rest)
		if loc == nil {
			sb.WriteString(paragraphs(rest))
			break
		}
		sb.WriteString(paragraphs(rest[:loc[0]]))
		lang := rest[loc[2]:loc[3]]
		code := strings.TrimRight(rest[loc[4]:loc[5]], "\n")

		sb.WriteString("<div class=\"code-block\">")
		if lang != "" {
			fmt.Fprintf(&sb, "<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
		}
		sb.WriteString(highlightHTML(code, lang, e.options.Theme))
		sb.WriteString("</div>\n")
		rest = rest[loc[1]:]
	}
	return sb.String()
}

// paragraphs escapes text and splits it on blank lines.
func paragraphs(text string) string {
	var sb strings.Builder
	for _, p := range strings.Split(strings.TrimSpace(text), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = html.EscapeString(p)
		p = inlineCodeRegex.ReplaceAllString(p, "<code>$1</code>")
		p = strings.ReplaceAll(p, "\n", "<br>\n")
		fmt.Fprintf(&sb, "<p>%s</p>\n", p)
	}
	return sb.String()
}

const htmlCSS = `<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
.dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --border: #414868; --user: #1f2335; --accent: #7aa2f7; }
.light-theme { --bg: #ffffff; --panel: #f7f8fa; --text: #24292e; --muted: #6a737d; --border: #e1e4e8; --user: #f6f8fa; --accent: #0366d6; }
body { font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; background: var(--bg); color: var(--text); line-height: 1.6; }
.container { max-width: 900px; margin: 0 auto; padding: 2rem 1rem; }
header { border-bottom: 1px solid var(--border); padding-bottom: 1rem; margin-bottom: 1.5rem; }
.meta span { color: var(--muted); margin-right: 1.5rem; font-size: 0.9rem; }
.message { background: var(--panel); border: 1px solid var(--border); border-radius: 8px; padding: 1rem; margin-bottom: 1rem; }
.message.user { background: var(--user); }
.message-header { display: flex; justify-content: space-between; margin-bottom: 0.5rem; }
.role { font-weight: 600; color: var(--accent); }
.time { color: var(--muted); font-size: 0.85rem; }
.content p { margin-bottom: 0.75rem; }
.content code { font-family: "SF Mono", Monaco, monospace; font-size: 0.9em; }
.code-block { margin: 0.75rem 0; border-radius: 6px; overflow-x: auto; }
.code-block pre { padding: 0.75rem; }
.code-lang { font-size: 0.75rem; color: var(--muted); padding: 0.25rem 0.75rem; }
.sources { margin-top: 0.5rem; color: var(--muted); font-size: 0.9rem; }
.sources ol { padding-left: 1.5rem; }
footer { color: var(--muted); font-size: 0.85rem; text-align: center; margin-top: 2rem; }
</style>
`

// exportedAt is the document date used by the HTML meta tag.
func exportedAt(o *Options) string {
	return o.now().Format(time.RFC3339)
}
