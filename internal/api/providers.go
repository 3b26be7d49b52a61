// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Provider configuration endpoint roots.
const (
	PathLLM       = "/api/llm"
	PathEmbedding = "/api/embedding"
)

// ConfigStatus is the {status, message} result of provider mutations.
type ConfigStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the server accepted the change without error.
func (s ConfigStatus) OK() bool {
	return s.Status == "success" || s.Status == "warning"
}

// statusError turns an error status into an error value.
func statusError(op string, s *ConfigStatus) error {
	if s.Status == "error" {
		return fmt.Errorf("%s: %s", op, s.Message)
	}
	return nil
}

// =============================================================================
// LLM CONFIGURATION
// =============================================================================

// LLMConfig is the chat model provider configuration.
type LLMConfig struct {
	Provider         string  `json:"provider"`
	APIBase          string  `json:"api_base"`
	APIKey           string  `json:"api_key"`
	ModelName        string  `json:"model_name"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// Validate checks the ranges the backend enforces.
func (c LLMConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.APIBase) == "" {
		problems = append(problems, "api_base is required")
	}
	if strings.TrimSpace(c.ModelName) == "" {
		problems = append(problems, "model_name is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		problems = append(problems, "max_tokens must not be negative")
	}
	if c.TopP < 0 || c.TopP > 1 {
		problems = append(problems, "top_p must be between 0 and 1")
	}
	if len(problems) > 0 {
		return &ValidationError{Detail: strings.Join(problems, "; ")}
	}
	return nil
}

// LLMConfigResponse is the body of GET /api/llm/config.
type LLMConfigResponse struct {
	Config          LLMConfig `json:"config"`
	AvailableModels []string  `json:"available_models"`
	Status          string    `json:"status"`
}

// GetLLMConfig returns the active LLM configuration.
func (c *Client) GetLLMConfig(ctx context.Context) (*LLMConfigResponse, error) {
	var res LLMConfigResponse
	if err := c.do(ctx, http.MethodGet, PathLLM+"/config", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateLLMConfig replaces the LLM configuration.
func (c *Client) UpdateLLMConfig(ctx context.Context, cfg LLMConfig) (*ConfigStatus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return c.configStatus(ctx, http.MethodPost, PathLLM+"/config", cfg, "update LLM config")
}

// TestLLMConfig asks the backend to try cfg without saving it.
func (c *Client) TestLLMConfig(ctx context.Context, cfg LLMConfig) (*ConfigStatus, error) {
	return c.configStatus(ctx, http.MethodPost, PathLLM+"/config/test", cfg, "test LLM config")
}

// LLMModels lists models available from the configured provider.
func (c *Client) LLMModels(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, http.MethodGet, PathLLM+"/models", nil)
}

// DefaultLLMConfig returns the backend's default LLM configuration.
func (c *Client) DefaultLLMConfig(ctx context.Context) (*LLMConfig, error) {
	var cfg LLMConfig
	if err := c.do(ctx, http.MethodGet, PathLLM+"/config/default", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResetLLMConfig restores the backend's default LLM configuration.
func (c *Client) ResetLLMConfig(ctx context.Context) (*ConfigStatus, error) {
	return c.configStatus(ctx, http.MethodPost, PathLLM+"/config/reset", nil, "reset LLM config")
}

// ExportLLMConfig returns the persisted llm section of the backend config.
func (c *Client) ExportLLMConfig(ctx context.Context) (map[string]any, error) {
	var section map[string]any
	if _, err := c.doEnvelope(ctx, http.MethodGet, PathLLM+"/config/export", nil, nil, &section); err != nil {
		return nil, err
	}
	return section, nil
}

// ReinitializeLLM rebuilds the chat service's model client.
func (c *Client) ReinitializeLLM(ctx context.Context) (*ConfigStatus, error) {
	return c.configStatus(ctx, http.MethodPost, PathLLM+"/reinitialize", nil, "reinitialize LLM")
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// EmbeddingConfig is the embedding model provider configuration.
type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	BaseURL   string `json:"base_url"`
	ModelName string `json:"model_name"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// Validate checks the fields the backend requires.
func (c EmbeddingConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.BaseURL) == "" {
		problems = append(problems, "base_url is required")
	}
	if strings.TrimSpace(c.ModelName) == "" {
		problems = append(problems, "model_name is required")
	}
	if c.Dimension <= 0 {
		problems = append(problems, "dimension must be positive")
	}
	if len(problems) > 0 {
		return &ValidationError{Detail: strings.Join(problems, "; ")}
	}
	return nil
}

// EmbeddingConfigResponse is the body of GET /api/embedding/config.
type EmbeddingConfigResponse struct {
	Config          EmbeddingConfig `json:"config"`
	AvailableModels []string        `json:"available_models"`
	Status          string          `json:"status"`
}

// GetEmbeddingConfig returns the active embedding configuration.
func (c *Client) GetEmbeddingConfig(ctx context.Context) (*EmbeddingConfigResponse, error) {
	var res EmbeddingConfigResponse
	if err := c.do(ctx, http.MethodGet, PathEmbedding+"/config", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateEmbeddingConfig replaces the embedding configuration.
func (c *Client) UpdateEmbeddingConfig(ctx context.Context, cfg EmbeddingConfig) (*ConfigStatus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return c.configStatus(ctx, http.MethodPost, PathEmbedding+"/config", cfg, "update embedding config")
}

// TestEmbeddingConfig asks the backend to try cfg without saving it.
func (c *Client) TestEmbeddingConfig(ctx context.Context, cfg EmbeddingConfig) (*ConfigStatus, error) {
	return c.configStatus(ctx, http.MethodPost, PathEmbedding+"/config/test", cfg, "test embedding config")
}

// EmbeddingModels lists embedding models for the configured provider.
func (c *Client) EmbeddingModels(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, http.MethodGet, PathEmbedding+"/models", nil)
}

// RefreshEmbeddingModels re-queries the provider for its model list.
func (c *Client) RefreshEmbeddingModels(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, http.MethodPost, PathEmbedding+"/models/refresh", nil)
}

// DefaultEmbeddingConfig returns the backend's default embedding configuration.
func (c *Client) DefaultEmbeddingConfig(ctx context.Context) (*EmbeddingConfig, error) {
	var cfg EmbeddingConfig
	if err := c.do(ctx, http.MethodGet, PathEmbedding+"/config/default", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResetEmbeddingConfig restores the backend's default embedding configuration.
func (c *Client) ResetEmbeddingConfig(ctx context.Context) (*ConfigStatus, error) {
	return c.configStatus(ctx, http.MethodPost, PathEmbedding+"/config/reset", nil, "reset embedding config")
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) configStatus(ctx context.Context, method, path string, body any, op string) (*ConfigStatus, error) {
	var st ConfigStatus
	if err := c.do(ctx, method, path, nil, body, &st); err != nil {
		return nil, err
	}
	return &st, statusError(op, &st)
}

func (c *Client) stringList(ctx context.Context, method, path string, body any) ([]string, error) {
	var out []string
	if err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
