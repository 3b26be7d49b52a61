// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for kbchat.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	chatctl "github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders assistant answers with glamour and caches the
// output per message content and width.
type markdownRenderer struct {
	style   string
	enabled bool
	width   int
	tr      *glamour.TermRenderer
	cache   map[string]string
}

func newMarkdownRenderer(style string, enabled bool) *markdownRenderer {
	return &markdownRenderer{style: style, enabled: enabled, cache: make(map[string]string)}
}

// setWidth rebuilds the renderer when the wrap width changes.
func (r *markdownRenderer) setWidth(width int) {
	if width == r.width && r.tr != nil {
		return
	}
	r.width = width
	r.cache = make(map[string]string)
	r.tr = nil
	if !r.enabled || width <= 0 {
		return
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		r.enabled = false
		return
	}
	r.tr = tr
}

// render returns the styled text, falling back to plain wrapping.
func (r *markdownRenderer) render(content string) string {
	if r.tr == nil {
		return lipgloss.NewStyle().Width(max(r.width, 1)).Render(content)
	}
	if out, ok := r.cache[content]; ok {
		return out
	}
	out, err := r.tr.Render(content)
	if err != nil {
		out = content
	}
	out = strings.Trim(out, "\n")
	r.cache[content] = out
	return out
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderTranscript renders every message for the viewport.
func renderTranscript(theme *styles.Theme, r *markdownRenderer, messages []model.Message, width int, showSources bool) string {
	if len(messages) == 0 {
		return theme.Muted.Render("Start a conversation by typing a question below.")
	}
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderMessage(theme, r, msg, width, showSources))
	}
	return b.String()
}

func renderMessage(theme *styles.Theme, r *markdownRenderer, msg model.Message, width int, showSources bool) string {
	var label lipgloss.Style
	switch msg.Role {
	case model.RoleUser:
		label = theme.UserLabel
	case model.RoleAssistant:
		label = theme.AssistantLabel
	default:
		label = theme.SystemLabel
	}

	head := label.Render(msg.Role.DisplayName())
	if t, err := model.ParseTime(msg.Timestamp); err == nil {
		head += " " + theme.Timestamp.Render(t.Local().Format("15:04"))
	}

	var body string
	switch {
	case msg.Role == model.RoleAssistant && msg.Content == chatctl.PlaceholderText:
		body = theme.Placeholder.Render(msg.Content)
	case msg.Role == model.RoleAssistant:
		body = r.render(msg.Content)
	default:
		body = theme.MessageBody.Width(max(width-2, 1)).Render(msg.Content)
	}

	out := head + "\n" + body
	if showSources && len(msg.SourceDocuments) > 0 {
		out += "\n" + renderSources(theme, msg.SourceDocuments, width)
	}
	return out
}

func renderSources(theme *styles.Theme, docs []model.SourceDocument, width int) string {
	lines := []string{"Sources:"}
	for i, d := range docs {
		label := d.Source()
		if label == "" {
			label = util.FirstLine(d.Content)
		}
		lines = append(lines, util.TruncateWidth(fmt.Sprintf("  [%d] %s", i+1, label), max(width-4, 8)))
	}
	return theme.Sources.Render(strings.Join(lines, "\n"))
}
