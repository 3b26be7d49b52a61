// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jeranaias/kbchat/internal/model"
)

// PathKnowledge is the knowledge base endpoint root.
const PathKnowledge = "/api/knowledge"

// DefaultSearchK is the number of passages returned by a search.
const DefaultSearchK = 5

// MaxUploadSize bounds documents sent through UploadDocument.
const MaxUploadSize = 20 * 1024 * 1024

// KnowledgeDocument is the body of POST /api/knowledge/document.
type KnowledgeDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	DocID    string         `json:"doc_id,omitempty"`
}

// KnowledgeResult is the outcome of a knowledge base mutation. The backend
// reports failures in the body with success=false and a 200 status.
type KnowledgeResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	DocID         string `json:"doc_id,omitempty"`
	DocumentCount *int   `json:"document_count,omitempty"`
}

func (r *KnowledgeResult) err(op string) error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s: %s", op, r.Message)
}

// SearchHit is one passage returned by a knowledge search.
type SearchHit struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    *float64       `json:"score,omitempty"`
}

// Document converts the hit to a source document for display.
func (h SearchHit) Document() model.SourceDocument {
	return model.SourceDocument{Content: h.Content, Metadata: h.Metadata}
}

// KnowledgeSearchResponse is the body of POST /api/knowledge/search.
type KnowledgeSearchResponse struct {
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// CollectionInfo describes the vector collection.
type CollectionInfo struct {
	Name     string         `json:"name"`
	Count    int            `json:"count"`
	Metadata map[string]any `json:"metadata"`
}

// StoredDocument is one entry of the document listing.
type StoredDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids and a few id key spellings.
func (d *StoredDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range []string{"id", "doc_id", "document_id"} {
		if v, ok := raw[key]; ok && v != nil {
			d.ID = fmt.Sprint(v)
			break
		}
	}
	if s, ok := raw["content"].(string); ok {
		d.Content = s
	} else if s, ok := raw["page_content"].(string); ok {
		d.Content = s
	}
	if m, ok := raw["metadata"].(map[string]any); ok {
		d.Metadata = m
	}
	return nil
}

// DocumentList is the body of GET /api/knowledge/documents.
type DocumentList struct {
	Documents []StoredDocument `json:"documents"`
	Count     int              `json:"count"`
}

// AddDocument stores a text document in the knowledge base.
func (c *Client) AddDocument(ctx context.Context, doc KnowledgeDocument) (*KnowledgeResult, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, &ValidationError{Detail: "document content must not be empty"}
	}
	var res KnowledgeResult
	if err := c.do(ctx, http.MethodPost, PathKnowledge+"/document", nil, doc, &res); err != nil {
		return nil, err
	}
	return &res, res.err("add document")
}

// UploadDocument uploads a UTF-8 text file as a multipart form.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader, metadata map[string]any) (*KnowledgeResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(content, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if n > MaxUploadSize {
		return nil, &ValidationError{Detail: fmt.Sprintf("%s exceeds the %d byte upload limit", filename, MaxUploadSize)}
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := mw.WriteField("metadata", string(meta)); err != nil {
			return nil, fmt.Errorf("failed to write metadata field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathKnowledge+"/documents/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	resp, err := c.send(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, &NetworkError{Op: "POST " + req.URL.Path, Err: err}
	}
	var res KnowledgeResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	return &res, res.err("upload document")
}

// SearchKnowledge runs a semantic search over the knowledge base.
func (c *Client) SearchKnowledge(ctx context.Context, query string, k int) (*KnowledgeSearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Detail: "query must not be empty"}
	}
	if k <= 0 {
		k = DefaultSearchK
	}
	body := map[string]any{"query": query, "k": k}
	var res KnowledgeSearchResponse
	if err := c.do(ctx, http.MethodPost, PathKnowledge+"/search", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Collection returns information about the vector collection.
func (c *Client) Collection(ctx context.Context) (*CollectionInfo, error) {
	var info CollectionInfo
	if err := c.do(ctx, http.MethodGet, PathKnowledge+"/collection", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListDocuments returns up to limit stored documents.
func (c *Client) ListDocuments(ctx context.Context, limit int) (*DocumentList, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var list DocumentList
	if err := c.do(ctx, http.MethodGet, PathKnowledge+"/documents", q, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteDocument removes one document by id.
func (c *Client) DeleteDocument(ctx context.Context, docID string) (*KnowledgeResult, error) {
	var res KnowledgeResult
	if err := c.do(ctx, http.MethodDelete, PathKnowledge+"/documents/"+pathEscape(docID), nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, res.err("delete document")
}

// ClearCollection removes every document from the knowledge base.
func (c *Client) ClearCollection(ctx context.Context) (*KnowledgeResult, error) {
	var res KnowledgeResult
	if err := c.do(ctx, http.MethodDelete, PathKnowledge+"/collection", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, res.err("clear collection")
}
