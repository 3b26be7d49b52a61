// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// styleFor maps an export theme to a chroma style.
func styleFor(theme string) *chroma.Style {
	name := "monokai"
	if theme == "light" {
		name = "github"
	}
	style := chromaStyles.Get(name)
	if style == nil {
		style = chromaStyles.Fallback
	}
	return style
}

func lexerFor(lang, code string) chroma.Lexer {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// HighlightTerminal colors code for a 256-color terminal. On any failure the
// code is returned unchanged.
func HighlightTerminal(code, lang, theme string) string {
	iterator, err := lexerFor(lang, code).Tokenise(nil, code)
	if err != nil {
		return code
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return code
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, styleFor(theme), iterator); err != nil {
		return code
	}
	return buf.String()
}

// highlightHTML renders code as a standalone <pre> block with inline styles.
// SECURITY: token text is escaped by the formatter; the fallback escapes too.
func highlightHTML(code, lang, theme string) string {
	fallback := "<pre><code>" + html.EscapeString(code) + "</code></pre>"

	iterator, err := lexerFor(lang, code).Tokenise(nil, code)
	if err != nil {
		return fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))
	var buf bytes.Buffer
	if err := formatter.Format(&buf, styleFor(theme), iterator); err != nil {
		return fallback
	}
	return strings.TrimSpace(buf.String())
}
