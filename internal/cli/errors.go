// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/kbchat/internal/api"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitCancelled indicates the user interrupted the command
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrConfirmationRequired is returned by destructive commands run without
// --confirm where no prompt is possible.
var ErrConfirmationRequired = errors.New("confirmation required: re-run with --confirm")

// ErrAborted is returned when the user answers no to a confirmation prompt.
var ErrAborted = errors.New("aborted")

// UsageError marks bad arguments or flags.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// usagef builds a UsageError.
func usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError wraps failures to load or change the configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "config: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// exitCode maps err to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		ue *UsageError
		ce *ConfigError
		ne *api.NetworkError
		ve *api.ValidationError
	)
	switch {
	case api.IsCancellation(err), errors.Is(err, ErrAborted):
		return ExitCancelled
	case errors.As(err, &ue), errors.As(err, &ve), errors.Is(err, ErrConfirmationRequired):
		return ExitUsageError
	case errors.As(err, &ce):
		return ExitConfigError
	case errors.Is(err, api.ErrUnauthorized):
		return ExitAuthError
	case errors.As(err, &ne):
		if ne.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}

	switch api.StatusCode(err) {
	case http.StatusNotFound:
		return ExitNotFoundError
	case http.StatusForbidden:
		return ExitAuthError
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ExitTimeoutError
	}
	return ExitGeneralError
}

// reportError prints err for a human reader. Backend errors are phrased the
// same way the chat view phrases them.
func reportError(w io.Writer, err error) {
	msg := err.Error()
	var ue *UsageError
	var ce *ConfigError
	if !errors.As(err, &ue) && !errors.As(err, &ce) {
		msg = api.UserMessage(err)
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error:"), msg)
	if errors.Is(err, api.ErrUnauthorized) {
		fmt.Fprintln(w, DimStyle.Render("Run 'kbchat login' to store a new token."))
	}
}
