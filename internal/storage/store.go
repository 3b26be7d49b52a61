// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides kbchat's local key/value storage.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Well-known keys.
const (
	KeyAuthToken   = "auth_token"
	KeyLastSession = "last_session"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage closed")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL -- Unix milliseconds
) WITHOUT ROWID;
`

// DefaultPath returns ~/.kbchat/local.db, or a path in the working
// directory when the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".kbchat", "local.db")
	}
	return filepath.Join(home, ".kbchat", "local.db")
}

// =============================================================================
// STORE
// =============================================================================

// Store is a key/value table in SQLite. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time

	// token caches KeyAuthToken; it is read on every request.
	token string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.Named("storage")
		}
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	// SECURITY: restrict the database to the current user; it holds the token.
	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			s.logger.Warn("failed to restrict database permissions", zap.Error(err))
		}
	}

	if tok, err := s.Get(context.Background(), KeyAuthToken); err == nil {
		s.token = tok
	}
	return s, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// =============================================================================
// KEY/VALUE
// =============================================================================

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	var v string
	err = db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if key == KeyAuthToken {
		s.token = value
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if key == KeyAuthToken {
		s.token = ""
	}
	return nil
}

// Keys lists keys starting with prefix in sorted order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	// Escape LIKE wildcards in the prefix.
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' ORDER BY key`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetJSON decodes the value under key into v.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v encoded as JSON under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// =============================================================================
// TOKEN STORE
// =============================================================================

// Token returns the cached bearer token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken persists the bearer token. An empty token clears it.
func (s *Store) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.ClearToken()
	}
	return s.Set(context.Background(), KeyAuthToken, token)
}

// ClearToken removes the bearer token.
func (s *Store) ClearToken() error {
	return s.Delete(context.Background(), KeyAuthToken)
}

// =============================================================================
// PREFERENCES
// =============================================================================

// LastSession returns the session id selected when kbchat last exited.
func (s *Store) LastSession(ctx context.Context) (string, bool) {
	id, err := s.Get(ctx, KeyLastSession)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug("failed to read last session", zap.Error(err))
		}
		return "", false
	}
	return id, id != ""
}

// SetLastSession records the selected session id. An empty id forgets it.
func (s *Store) SetLastSession(ctx context.Context, id string) error {
	if id == "" {
		return s.Delete(ctx, KeyLastSession)
	}
	return s.Set(ctx, KeyLastSession, id)
}
