// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
)

var _ api.TokenStore = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "local.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen_CreatesDirectory(t *testing.T) {
	_, path := openTemp(t)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestStore_SetGetDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "theme")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Set(ctx, "theme", "dark"))
	require.NoError(t, s.Set(ctx, "theme", "light"))
	v, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	if v != "light" {
		t.Errorf("Get(theme) = %q, want %q", v, "light")
	}

	require.NoError(t, s.Delete(ctx, "theme"))
	require.NoError(t, s.Delete(ctx, "theme"), "deleting twice is fine")
	_, err = s.Get(ctx, "theme")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Keys(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	for _, k := range []string{"ui.width", "ui.theme", "ui_x", "auth_token"} {
		require.NoError(t, s.Set(ctx, k, "v"))
	}

	keys, err := s.Keys(ctx, "ui.")
	require.NoError(t, err)
	assert.Equal(t, []string{"ui.theme", "ui.width"}, keys)

	keys, err = s.Keys(ctx, "ui_")
	require.NoError(t, err)
	assert.Equal(t, []string{"ui_x"}, keys, "underscore is literal")

	keys, err = s.Keys(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestStore_JSON(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	type prefs struct {
		Width int    `json:"width"`
		Theme string `json:"theme"`
	}
	require.NoError(t, s.SetJSON(ctx, "prefs", prefs{Width: 30, Theme: "dark"}))

	var got prefs
	require.NoError(t, s.GetJSON(ctx, "prefs", &got))
	assert.Equal(t, prefs{Width: 30, Theme: "dark"}, got)

	require.NoError(t, s.Set(ctx, "bad", "{"))
	assert.Error(t, s.GetJSON(ctx, "bad", &got))
}

func TestStore_TokenSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "", s.Token())
	require.NoError(t, s.SetToken("  abc123 "))
	assert.Equal(t, "abc123", s.Token())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "abc123", s.Token())

	require.NoError(t, s.ClearToken())
	assert.Equal(t, "", s.Token())
	_, err = s.Get(context.Background(), KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetTokenEmptyClears(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.SetToken("abc"))
	require.NoError(t, s.SetToken(""))
	assert.Equal(t, "", s.Token())
}

func TestStore_LastSession(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, ok := s.LastSession(ctx)
	assert.False(t, ok)

	require.NoError(t, s.SetLastSession(ctx, "abc"))
	id, ok := s.LastSession(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	require.NoError(t, s.SetLastSession(ctx, ""))
	_, ok = s.LastSession(ctx)
	assert.False(t, ok)
}

func TestStore_Closed(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				assert.NoError(t, s.Set(ctx, "k", string(rune('a'+i))+string(rune('a'+j))))
			}
		}()
	}
	wg.Wait()

	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)
}
