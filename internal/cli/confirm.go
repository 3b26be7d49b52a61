// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// =============================================================================
// UNIFIED CONFIRMATION HANDLING
// =============================================================================

// confirm decides whether a destructive action may proceed:
//  1. --confirm proceeds without prompting
//  2. --json never prompts and requires --confirm
//  3. a non-terminal stdin cannot prompt and requires --confirm
//  4. otherwise the user is asked, defaulting to no
func (a *App) confirm(cmd *cobra.Command, confirmed bool, action string, details map[string]string) error {
	if confirmed {
		return nil
	}
	if a.flags.json || !isTerminal(cmd.InOrStdin()) {
		return ErrConfirmationRequired
	}

	w := cmd.ErrOrStderr()
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(w, "  "+RenderField(k+":", details[k]))
		}
	}
	fmt.Fprint(w, WarningStyle.Render(fmt.Sprintf("Are you sure you want to %s? [y/N]: ", action)))

	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return ErrAborted
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return ErrAborted
	}
}
