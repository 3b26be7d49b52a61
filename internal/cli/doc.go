// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the kbchat command line.
//
// Running kbchat with no subcommand starts the full-screen chat view. The
// subcommands cover the same backend for scripts and quick questions:
//
//	kbchat ask "what is our refund policy?"
//	kbchat chat                      # line-oriented REPL
//	kbchat sessions list --all
//	kbchat sessions export <id> --format markdown -o notes/
//	kbchat llm show
//	kbchat kb search "onboarding" -k 3
//	kbchat config set ui.theme light
//
// # Key Types
//
//   - Options: Streams and arguments for one invocation
//   - App: Lazily built collaborators shared by every subcommand
//   - JSONResponse: Envelope written by --json
//
// # Conventions
//
// Commands return errors instead of printing them; Execute maps them to
// exit codes. Destructive commands refuse to run without --confirm unless
// stdin is a terminal that can answer a prompt. With --json every command
// writes exactly one JSONResponse to stdout.
package cli
