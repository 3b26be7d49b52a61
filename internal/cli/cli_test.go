// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// HARNESS
// =============================================================================

type result struct {
	stdout string
	stderr string
	code   int
}

// harness runs the command line against a fake backend with config,
// storage and log confined to a temp dir.
type harness struct {
	t          *testing.T
	dir        string
	configPath string
	mux        *http.ServeMux
	srv        *httptest.Server

	mu   sync.Mutex
	hits []string
	auth []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv("NO_COLOR", "1")

	h := &harness{t: t, dir: t.TempDir(), mux: http.NewServeMux()}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits = append(h.hits, r.Method+" "+r.URL.Path)
		h.auth = append(h.auth, r.Header.Get("Authorization"))
		h.mu.Unlock()
		h.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(h.srv.Close)

	h.configPath = filepath.Join(h.dir, "config.toml")
	cfg := fmt.Sprintf(`[api]
base_url = %q

[storage]
path = %q

[log]
level = "debug"
file = %q
`, h.srv.URL, filepath.Join(h.dir, "local.db"), filepath.Join(h.dir, "kbchat.log"))
	require.NoError(t, os.WriteFile(h.configPath, []byte(cfg), 0600))
	return h
}

func (h *harness) run(stdin string, args ...string) result {
	h.t.Helper()
	var out, errb bytes.Buffer
	code := Execute(context.Background(), Options{
		Version: "1.2.3",
		Args:    append([]string{"--config", h.configPath, "--no-color"}, args...),
		Stdin:   strings.NewReader(stdin),
		Stdout:  &out,
		Stderr:  &errb,
	})
	return result{stdout: out.String(), stderr: errb.String(), code: code}
}

func (h *harness) requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.hits...)
}

func (h *harness) lastAuth() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.auth) == 0 {
		return ""
	}
	return h.auth[len(h.auth)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envelope(data any) map[string]any {
	return map[string]any{"success": true, "message": "ok", "data": data}
}

func sessionJSON(sid, title string) map[string]any {
	return map[string]any{
		"session_id":    sid,
		"title":         title,
		"created_at":    "2025-01-02T03:04:05",
		"updated_at":    "2025-01-02T03:04:05",
		"is_active":     true,
		"message_count": 3,
	}
}

func decodeJSON(t *testing.T, s string) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal([]byte(s), &resp), s)
	return resp
}

// =============================================================================
// LOCAL COMMANDS
// =============================================================================

func TestVersion(t *testing.T) {
	h := newHarness(t)

	r := h.run("", "version")
	assert.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "kbchat 1.2.3")

	r = h.run("", "--json", "version")
	resp := decodeJSON(t, r.stdout)
	assert.True(t, resp.Success)
	assert.Equal(t, "kbchat version", resp.Command)
	assert.Equal(t, "1.2.3", resp.Data.(map[string]any)["version"])
	assert.Empty(t, h.requests(), "version never calls the backend")
}

func TestConfigPath(t *testing.T) {
	h := newHarness(t)
	r := h.run("", "config", "path")
	assert.Equal(t, ExitSuccess, r.code)
	assert.Equal(t, h.configPath, strings.TrimSpace(r.stdout))
}

func TestConfigSetGet(t *testing.T) {
	h := newHarness(t)

	r := h.run("", "config", "set", "ui.theme", "light")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	r = h.run("", "config", "get", "ui.theme")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "light", strings.TrimSpace(r.stdout))

	data, err := os.ReadFile(h.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `theme = "light"`)
}

func TestConfigSet_Invalid(t *testing.T) {
	h := newHarness(t)

	r := h.run("", "config", "set", "ui.theme", "purple")
	assert.Equal(t, ExitConfigError, r.code)
	assert.Contains(t, r.stderr, "ui.theme")

	r = h.run("", "config", "set", "api.token", "abc")
	assert.Equal(t, ExitUsageError, r.code)
}

func TestConfigShow_RedactsToken(t *testing.T) {
	h := newHarness(t)
	t.Setenv(config.EnvToken, "secret-token")

	r := h.run("", "config", "show")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "[REDACTED]")
	assert.NotContains(t, r.stdout, "secret-token")
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("GET "+api.PathSessions, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, envelope(map[string]any{"sessions": []any{}, "total_count": 0}))
	})

	r := h.run("abc123\n", "login")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Token stored")

	h.run("", "sessions", "list")
	assert.Equal(t, "Bearer abc123", h.lastAuth())

	r = h.run("", "logout")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	h.run("", "sessions", "list")
	assert.Equal(t, "", h.lastAuth())
}

func TestLogin_EmptyToken(t *testing.T) {
	h := newHarness(t)
	r := h.run("\n", "login")
	assert.Equal(t, ExitUsageError, r.code)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionsList(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("GET "+api.PathSessions, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("active_only"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, 200, envelope(map[string]any{
			"sessions":    []any{sessionJSON("s1", "Billing"), sessionJSON("s2", "Onboarding")},
			"total_count": 7,
		}))
	})

	r := h.run("", "sessions", "list", "--all", "-n", "5")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Billing")
	assert.Contains(t, r.stdout, "Onboarding")
	assert.Contains(t, r.stdout, "Showing 2 of 7 sessions.")

	r = h.run("", "--json", "sessions", "list", "--all", "-n", "5")
	resp := decodeJSON(t, r.stdout)
	assert.True(t, resp.Success)
	assert.EqualValues(t, 7, resp.Data.(map[string]any)["total_count"])
}

func TestSessionsDelete_RequiresConfirm(t *testing.T) {
	h := newHarness(t)
	var deleted string
	h.mux.HandleFunc("DELETE "+api.PathSessions+"/{id}/permanent", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		writeJSON(w, 200, envelope(nil))
	})

	r := h.run("", "sessions", "delete", "s1")
	assert.Equal(t, ExitUsageError, r.code)
	assert.Contains(t, r.stderr, "--confirm")
	assert.Empty(t, h.requests())

	r = h.run("", "sessions", "delete", "s1", "--confirm")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "s1", deleted)
}

func TestSessionsDeleteAll(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("DELETE "+api.PathSessions, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, envelope(map[string]any{"deleted_sessions": 12}))
	})

	r := h.run("", "--json", "sessions", "delete-all")
	assert.Equal(t, ExitUsageError, r.code)
	assert.False(t, decodeJSON(t, r.stdout).Success)

	r = h.run("", "sessions", "delete-all", "--confirm")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Deleted 12 sessions")
}

func TestSessionsRenameAndDeactivate(t *testing.T) {
	h := newHarness(t)
	var bodies []map[string]any
	h.mux.HandleFunc("PUT "+api.PathSessions+"/s1", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		writeJSON(w, 200, envelope(sessionJSON("s1", "Q3 planning")))
	})

	r := h.run("", "sessions", "rename", "s1", "Q3", "planning")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	r = h.run("", "sessions", "deactivate", "s1")
	require.Equal(t, ExitSuccess, r.code, r.stderr)

	require.Len(t, bodies, 2)
	assert.Equal(t, map[string]any{"title": "Q3 planning"}, bodies[0])
	assert.Equal(t, map[string]any{"is_active": false}, bodies[1])
}

func TestSessionsExport(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("GET "+api.PathSessions+"/s1/export", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		writeJSON(w, 200, envelope(map[string]any{"data": "role,content\nuser,hi\n"}))
	})
	h.mux.HandleFunc("GET "+api.PathSessions+"/s1/full", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"session": sessionJSON("s1", "Release notes"),
			"messages": []any{
				map[string]any{"role": "user", "content": "what changed?"},
				map[string]any{"role": "assistant", "content": "Two fixes."},
			},
		})
	})

	t.Run("server csv to stdout", func(t *testing.T) {
		r := h.run("", "sessions", "export", "s1", "-f", "csv")
		require.Equal(t, ExitSuccess, r.code, r.stderr)
		assert.Equal(t, "role,content\nuser,hi\n", r.stdout)
	})

	t.Run("local markdown to directory", func(t *testing.T) {
		out := filepath.Join(h.dir, "exports")
		r := h.run("", "sessions", "export", "s1", "-f", "markdown", "-o", out)
		require.Equal(t, ExitSuccess, r.code, r.stderr)

		files, err := filepath.Glob(filepath.Join(out, "kbchat_Release_notes_*.md"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), "Two fixes.")
	})

	t.Run("unknown format", func(t *testing.T) {
		r := h.run("", "sessions", "export", "s1", "-f", "pdf")
		assert.Equal(t, ExitUsageError, r.code)
	})
}

// =============================================================================
// ASK / CHAT
// =============================================================================

func streamHandler(t *testing.T, sessionIDs *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*sessionIDs = append(*sessionIDs, req.SessionID)

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"type":"token","token":"Hel","index":0}`+"\n\n")
		io.WriteString(w, `data: {"type":"token","token":"lo","index":1}`+"\n\n")
		io.WriteString(w, `data: {"type":"final","response":"Hello!","source_documents":[{"content":"greeting guide","metadata":{"source":"a.md"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}
}

func TestAsk_Streams(t *testing.T) {
	h := newHarness(t)
	var ids []string
	h.mux.HandleFunc("POST "+api.PathChatStream, streamHandler(t, &ids))

	r := h.run("", "ask", "say", "hello")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(r.stdout, "Hello!\n"), r.stdout)
	assert.Contains(t, r.stdout, "1. a.md: greeting guide")
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestAsk_JSON(t *testing.T) {
	h := newHarness(t)
	var ids []string
	h.mux.HandleFunc("POST "+api.PathChatStream, streamHandler(t, &ids))

	r := h.run("", "--json", "ask", "hello")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	resp := decodeJSON(t, r.stdout)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "Hello!", data["response"])
	assert.Equal(t, ids[0], data["session_id"])
}

func TestAsk_Sync(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("POST "+api.PathChatSend, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"response": "Blocking answer", "session_id": "s1"})
	})

	r := h.run("", "ask", "--sync", "--no-sources", "hi")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "Blocking answer\n", r.stdout)
}

func TestAsk_Unauthorized(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("POST "+api.PathChatStream, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"detail": "token expired"})
	})

	r := h.run("", "ask", "hello")
	assert.Equal(t, ExitAuthError, r.code)
	assert.Contains(t, r.stderr, "kbchat login")
}

func TestAsk_NetworkError(t *testing.T) {
	h := newHarness(t)
	h.srv.Close()

	r := h.run("", "ask", "hello")
	assert.Equal(t, ExitNetworkError, r.code)
}

func TestChatREPL(t *testing.T) {
	h := newHarness(t)
	var ids []string
	h.mux.HandleFunc("POST "+api.PathChatStream, streamHandler(t, &ids))

	r := h.run("first\n/bogus\n/sources\nsecond\n/new\nthird\n/quit\nignored\n", "chat")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, 3, strings.Count(r.stdout, "Hello!"))
	assert.Contains(t, r.stdout, "a.md")
	assert.Contains(t, r.stderr, "unknown command /bogus")

	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1], "turns share the session")
	assert.NotEqual(t, ids[1], ids[2], "/new starts a fresh session")
}

// =============================================================================
// PROVIDERS / KNOWLEDGE BASE
// =============================================================================

func TestLLMShow_MasksKey(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("GET "+api.PathLLM+"/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"config": map[string]any{"provider": "openai", "api_base": "https://api.example.com", "api_key": "sk-verysecret1234", "model_name": "gpt-x"},
			"status": "success",
		})
	})

	r := h.run("", "llm", "show")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "gpt-x")
	assert.Contains(t, r.stdout, "****1234")
	assert.NotContains(t, r.stdout, "verysecret")
}

func TestLLMSet_MergesChangedFlags(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("GET "+api.PathLLM+"/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"config": map[string]any{"provider": "openai", "api_base": "https://api.example.com", "model_name": "gpt-x", "temperature": 0.7, "max_tokens": 512, "top_p": 1},
		})
	})
	var got api.LLMConfig
	h.mux.HandleFunc("POST "+api.PathLLM+"/config", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 200, map[string]any{"status": "success", "message": "saved"})
	})

	r := h.run("", "llm", "set", "--model", "gpt-y", "--temperature", "0.2")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "saved")
	assert.Equal(t, "gpt-y", got.ModelName)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, 512, got.MaxTokens, "unchanged fields are kept")
	assert.Equal(t, "https://api.example.com", got.APIBase)

	r = h.run("", "llm", "set")
	assert.Equal(t, ExitUsageError, r.code)
}

func TestEmbeddingReset_RequiresConfirm(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("POST "+api.PathEmbedding+"/config/reset", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "success", "message": "reset"})
	})

	r := h.run("", "embedding", "reset")
	assert.Equal(t, ExitUsageError, r.code)

	r = h.run("", "embedding", "reset", "--confirm")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "reset")
}

func TestKBSearch(t *testing.T) {
	h := newHarness(t)
	h.mux.HandleFunc("POST "+api.PathKnowledge+"/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "vacation policy", body["query"])
		assert.EqualValues(t, 2, body["k"])
		writeJSON(w, 200, map[string]any{
			"results": []any{
				map[string]any{"content": "Employees get 25 days.", "metadata": map[string]any{"source": "handbook.pdf"}, "score": 0.91},
			},
			"count": 1,
		})
	})

	r := h.run("", "kb", "search", "-k", "2", "vacation", "policy")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "handbook.pdf")
	assert.Contains(t, r.stdout, "(score 0.910)")
	assert.Contains(t, r.stdout, "Employees get 25 days.")
}

func TestKBAdd_FromStdinWithMetadata(t *testing.T) {
	h := newHarness(t)
	var got api.KnowledgeDocument
	h.mux.HandleFunc("POST "+api.PathKnowledge+"/document", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 200, map[string]any{"success": true, "message": "Document added", "doc_id": "d1"})
	})

	r := h.run("The office opens at 9.\n", "kb", "add", "-", "-m", "source=faq.md", "-m", "page=3")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Document added")
	assert.Equal(t, "The office opens at 9.\n", got.Content)
	assert.Equal(t, "faq.md", got.Metadata["source"])
	assert.EqualValues(t, 3, got.Metadata["page"])
}

func TestKBUpload(t *testing.T) {
	h := newHarness(t)
	var names []string
	h.mux.HandleFunc("POST "+api.PathKnowledge+"/documents/upload", func(w http.ResponseWriter, r *http.Request) {
		_, fh, err := r.FormFile("file")
		require.NoError(t, err)
		names = append(names, fh.Filename)
		writeJSON(w, 200, map[string]any{"success": true, "message": "uploaded"})
	})

	path := filepath.Join(h.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0600))

	r := h.run("", "kb", "upload", path)
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Equal(t, []string{"notes.txt"}, names)

	r = h.run("", "kb", "upload", filepath.Join(h.dir, "missing.txt"))
	assert.NotEqual(t, ExitSuccess, r.code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status := "healthy"
	h.mux.HandleFunc("GET "+api.PathChatHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": status})
	})

	r := h.run("", "health")
	require.Equal(t, ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "[OK]")

	status = "unhealthy"
	r = h.run("", "health")
	assert.Equal(t, ExitGeneralError, r.code)
	assert.Contains(t, r.stdout, "[FAIL]")
}

// =============================================================================
// HELPERS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", usagef("bad"), ExitUsageError},
		{"confirm", ErrConfirmationRequired, ExitUsageError},
		{"validation", &api.ValidationError{Detail: "x"}, ExitUsageError},
		{"config", &ConfigError{Err: errors.New("x")}, ExitConfigError},
		{"unauthorized", &api.HTTPStatusError{Status: 401}, ExitAuthError},
		{"not found", &api.HTTPStatusError{Status: 404}, ExitNotFoundError},
		{"network", &api.NetworkError{Op: "GET /", Err: errors.New("refused")}, ExitNetworkError},
		{"cancelled", context.Canceled, ExitCancelled},
		{"aborted", ErrAborted, ExitCancelled},
		{"wrapped", fmt.Errorf("upload: %w", &api.HTTPStatusError{Status: 404}), ExitNotFoundError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"source=a.md", "page=3", "weight=0.5", "draft=true", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"source": "a.md",
		"page":   int64(3),
		"weight": 0.5,
		"draft":  true,
		"note":   "a=b",
	}, meta)

	_, err = parseMeta([]string{"novalue"})
	assert.Error(t, err)

	meta, err = parseMeta(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("abc"))
	assert.Equal(t, "****wxyz", maskKey("sk-abcdwxyz"))
}

func TestTurnPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &turnPrinter{w: &buf, from: 0}
	// Placeholder, growing content, then a replacement.
	steps := []string{chat.PlaceholderText, "Hel", "Hello", "Something went wrong."}
	for _, s := range steps[:3] {
		p.update(stateWithReply(s))
	}
	p.finish(stateWithReply(steps[3]))
	p.update(stateWithReply("late"))

	assert.Equal(t, "Hello\nSomething went wrong.\n", buf.String())
}

func stateWithReply(content string) model.ChatState {
	return model.ChatState{Messages: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: content},
	}}
}
