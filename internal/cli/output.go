// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope written by every command under --json.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes r indented to w.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// emit writes data as a JSONResponse under --json and calls human
// otherwise.
func (a *App) emit(cmd *cobra.Command, data any, human func(w io.Writer) error) error {
	if a.flags.json {
		return NewJSONResponse(cmd.CommandPath(), data).Write(cmd.OutOrStdout())
	}
	return human(cmd.OutOrStdout())
}

// done reports a completed mutation.
func (a *App) done(cmd *cobra.Command, data any, format string, args ...any) error {
	return a.emit(cmd, data, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, SuccessStyle.Render("[OK]"), fmt.Sprintf(format, args...))
		return err
	})
}

// =============================================================================
// TABLES
// =============================================================================

// renderTable lays rows out under headers with a rounded border.
func renderTable(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SeparatorStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.Render()
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
