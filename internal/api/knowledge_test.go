// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDocument_Multipart(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathKnowledge+"/documents/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "alpha beta", string(data))

		var meta map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("metadata")), &meta))
		assert.Equal(t, "ops", meta["team"])

		writeJSON(w, 200, map[string]any{"success": true, "message": "stored", "doc_id": "d1", "document_count": 4})
	}))

	res, err := client.UploadDocument(context.Background(), "/tmp/notes.txt", strings.NewReader("alpha beta"), map[string]any{"team": "ops"})
	require.NoError(t, err)
	assert.Equal(t, "d1", res.DocID)
	require.NotNil(t, res.DocumentCount)
	assert.Equal(t, 4, *res.DocumentCount)
}

func TestAddDocument_FailureIn200Body(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": false, "message": "vector store unavailable"})
	}))

	res, err := client.AddDocument(context.Background(), KnowledgeDocument{Content: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector store unavailable")
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestAddDocument_RejectsEmpty(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").AddDocument(context.Background(), KnowledgeDocument{Content: " "})
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestSearchKnowledge(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "retry policy", body["query"])
		assert.Equal(t, float64(DefaultSearchK), body["k"])
		writeJSON(w, 200, map[string]any{
			"results": []any{map[string]any{"content": "Retry three times", "metadata": map[string]any{"title": "Runbook"}, "score": 0.87}},
			"count":   1,
		})
	}))

	res, err := client.SearchKnowledge(context.Background(), "retry policy", 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Runbook", res.Results[0].Document().Source())
	require.NotNil(t, res.Results[0].Score)
	assert.InDelta(t, 0.87, *res.Results[0].Score, 1e-9)
}

func TestStoredDocument_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantID  string
		wantTxt string
	}{
		{"id and content", `{"id":"a","content":"x"}`, "a", "x"},
		{"numeric doc_id", `{"doc_id":12,"content":"y"}`, "12", "y"},
		{"page_content", `{"document_id":"z","page_content":"p"}`, "z", "p"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d StoredDocument
			require.NoError(t, json.Unmarshal([]byte(tc.in), &d))
			if d.ID != tc.wantID {
				t.Errorf("ID = %q, want %q", d.ID, tc.wantID)
			}
			if d.Content != tc.wantTxt {
				t.Errorf("Content = %q, want %q", d.Content, tc.wantTxt)
			}
		})
	}
}

func TestProviderConfigStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLLM+"/config/test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "error", "message": "connection refused"})
	})
	mux.HandleFunc("POST "+PathEmbedding+"/config/reset", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "success", "message": "reset"})
	})
	mux.HandleFunc("GET "+PathLLM+"/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, []string{"gpt-4o", "llama3"})
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	st, err := client.TestLLMConfig(ctx, LLMConfig{APIBase: "http://x", ModelName: "m"})
	require.Error(t, err)
	assert.False(t, st.OK())
	assert.Contains(t, err.Error(), "connection refused")

	st, err = client.ResetEmbeddingConfig(ctx)
	require.NoError(t, err)
	assert.True(t, st.OK())

	models, err := client.LLMModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "llama3"}, models)
}

func TestLLMConfigValidate(t *testing.T) {
	good := LLMConfig{APIBase: "http://x", ModelName: "m", Temperature: 0.7, TopP: 1}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Temperature = 3
	bad.ModelName = ""
	err := bad.Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Detail, "model_name")
	assert.Contains(t, ve.Detail, "temperature")

	assert.Error(t, EmbeddingConfig{BaseURL: "http://x", ModelName: "e"}.Validate(), "dimension is required")
}
