// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// TURN OUTPUT
// =============================================================================

// turnPrinter copies the growing assistant reply of one turn to w. Only
// messages after index from belong to the turn.
type turnPrinter struct {
	w    io.Writer
	from int

	mu       sync.Mutex
	printed  string
	finished bool
}

// reply returns the turn's assistant message.
func (p *turnPrinter) reply(st model.ChatState) (model.Message, bool) {
	if p.from > len(st.Messages) {
		return model.Message{}, false
	}
	msgs := st.Messages[p.from:]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

// update is the store listener.
func (p *turnPrinter) update(st model.ChatState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.write(st)
	}
}

// finish writes whatever the listener has not seen yet and ends the line.
func (p *turnPrinter) finish(st model.ChatState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(st)
	p.finished = true
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		fmt.Fprintln(p.w)
	}
}

func (p *turnPrinter) write(st model.ChatState) {
	m, ok := p.reply(st)
	if !ok || m.Content == chat.PlaceholderText || m.Content == p.printed {
		return
	}
	if strings.HasPrefix(m.Content, p.printed) {
		io.WriteString(p.w, m.Content[len(p.printed):])
	} else {
		// Replaced rather than extended, e.g. by the error text.
		fmt.Fprint(p.w, "\n"+m.Content)
	}
	p.printed = m.Content
}

// ask runs one turn. With live set, the reply is streamed to it as it
// arrives. The settled assistant message is returned alongside the turn's
// error.
func (c *conversation) ask(ctx context.Context, text string, blocking bool, live io.Writer) (model.Message, error) {
	p := &turnPrinter{w: live, from: len(c.store.Snapshot().Messages)}
	if live != nil {
		unsubscribe := c.store.Subscribe(p.update)
		defer unsubscribe()
	}

	var err error
	if blocking {
		err = c.chat.SendSync(ctx, text)
	} else {
		err = c.chat.Send(ctx, text)
	}

	st := c.store.Snapshot()
	if live != nil {
		p.finish(st)
	}
	reply, _ := p.reply(st)
	return reply, err
}

// =============================================================================
// RENDERING
// =============================================================================

// renderMarkdown renders content with glamour, falling back to the raw text.
func renderMarkdown(content, style string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// writeSources lists the documents an answer cites.
func writeSources(w io.Writer, docs []model.SourceDocument, width int) {
	if len(docs) == 0 {
		return
	}
	fmt.Fprintln(w, SectionStyle.Render("Sources"))
	for i, d := range docs {
		label := d.Source()
		if label == "" {
			label = fmt.Sprintf("Document %d", i+1)
		}
		line := util.TruncateWidth(fmt.Sprintf("  %d. %s", i+1, label), width)
		room := width - util.StringWidth(line) - 2
		if excerpt := util.FirstLine(d.Content); excerpt != "" && room > 3 {
			line += DimStyle.Render(": " + util.TruncateWidth(excerpt, room))
		}
		fmt.Fprintln(w, line)
	}
}
