// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds kbchat's zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger's level, encoding and destination.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is "console" or "json". Empty means console.
	Format string
	// File receives the log. Empty selects DefaultFile. "-" writes to
	// stderr, which corrupts the TUI and is meant for CLI debugging.
	File string
	// Development enables caller and stack annotations.
	Development bool
}

// DefaultFile returns ~/.kbchat/kbchat.log.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".kbchat", "kbchat.log")
	}
	return filepath.Join(home, ".kbchat", "kbchat.log")
}

// New builds a logger from opts. The caller should defer Sync.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch opts.Format {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		cfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	file := opts.File
	if file == "" {
		file = DefaultFile()
	}
	if file == "-" {
		file = "stderr"
	} else {
		// SECURITY: logs may contain session ids; keep the directory private.
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	cfg.OutputPaths = []string{file}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("kbchat"), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
