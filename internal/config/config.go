// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for kbchat.
//
// Configuration is read from a TOML file, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file location (in order of precedence):
//   - $KBCHAT_CONFIG
//   - ~/.kbchat/config.toml
//   - Built-in defaults
package config

import (
	"encoding"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/kbchat/internal/util"
)

// Environment variables read by ApplyEnvOverrides and Path.
const (
	EnvAPIURL   = "KBCHAT_API_URL"
	EnvToken    = "KBCHAT_TOKEN"
	EnvConfig   = "KBCHAT_CONFIG"
	EnvLogLevel = "KBCHAT_LOG_LEVEL"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete kbchat configuration.
type Config struct {
	// Backend connection
	API APIConfig `toml:"api" json:"api"`

	// Streaming behaviour
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Local key/value storage
	Storage StorageConfig `toml:"storage" json:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000
	BaseURL string `toml:"base_url" json:"base_url"`
	// Timeout bounds non-streaming requests. Streams have no timeout.
	Timeout Duration `toml:"timeout" json:"timeout"`
	// WSClientID is the numeric id used for /api/chat/ws/{client_id}
	WSClientID int `toml:"ws_client_id" json:"ws_client_id"`
	// UserID filters session listings when set
	UserID string `toml:"user_id,omitempty" json:"user_id,omitempty"`
	// Token overrides the stored bearer token. Normally set through
	// KBCHAT_TOKEN rather than the file.
	Token string `toml:"token,omitempty" json:"token,omitempty"`
}

// StreamConfig controls how token chunks reach the screen.
type StreamConfig struct {
	// UpdateRate caps message updates per second; 0 applies every token
	UpdateRate float64 `toml:"update_rate" json:"update_rate"`
	// Burst is the number of updates allowed back to back
	Burst int `toml:"burst" json:"burst"`
}

// StorageConfig locates the local database.
type StorageConfig struct {
	// Path is the SQLite file; empty selects ~/.kbchat/local.db
	Path string `toml:"path" json:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant answers with glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// SidebarWidth is the session list width in cells; 0 hides it
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width"`
	// ShowSources lists source documents under answers
	ShowSources bool `toml:"show_sources" json:"show_sources"`
	// SessionLimit caps how many sessions are listed
	SessionLimit int `toml:"session_limit" json:"session_limit"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output; empty selects ~/.kbchat/kbchat.log
	File string `toml:"file" json:"file"`
}

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

var (
	_ encoding.TextMarshaler   = Duration{}
	_ encoding.TextUnmarshaler = (*Duration)(nil)
)

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Bare integers are
// read as seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if n, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    Duration{10 * time.Second},
			WSClientID: 1,
		},
		Stream: StreamConfig{
			UpdateRate: 30,
			Burst:      4,
		},
		UI: UIConfig{
			Theme:        "dark",
			Markdown:     true,
			SidebarWidth: 28,
			ShowSources:  true,
			SessionLimit: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the kbchat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".kbchat"), nil
}

// Path returns the config file path: $KBCHAT_CONFIG or
// ~/.kbchat/config.toml.
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions fixes permissions on the config file.
// SECURITY: The file may hold a token, so it is kept at 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config at Path. A missing file yields defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config at path with full validation. A missing
// file yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Keys absent from the file keep cfg's
// values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Not fatal: permissions may not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SaveTOML writes cfg to path atomically with 0600 permissions. The token
// is never written.
func SaveTOML(cfg *Config, path string) error {
	out := cfg.Clone()
	out.API.Token = ""

	var b strings.Builder
	b.WriteString("# kbchat configuration file\n")
	b.WriteString("# Generated by kbchat - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS / ENV
// =============================================================================

// SetDefaults fills zero values that must not stay zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	if c.API.Timeout.Duration == 0 {
		c.API.Timeout = d.API.Timeout
	}
	if c.Stream.Burst == 0 {
		c.Stream.Burst = 1
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.SessionLimit == 0 {
		c.UI.SessionLimit = d.UI.SessionLimit
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - KBCHAT_API_URL: overrides api.base_url
//   - KBCHAT_TOKEN: overrides the stored bearer token
//   - KBCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv(EnvAPIURL); u != "" {
		c.API.BaseURL = u
	}
	if tok := os.Getenv(EnvToken); tok != "" {
		c.API.Token = tok
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = strings.ToLower(lvl)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes     = []string{"dark", "light", "auto"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Host == "" {
		add("api.base_url", fmt.Sprintf("invalid URL %q", c.API.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("api.base_url", "scheme must be http or https")
	}
	if c.API.Timeout.Duration < 0 || c.API.Timeout.Duration > 10*time.Minute {
		add("api.timeout", "must be between 0 and 10m")
	}
	if c.API.WSClientID < 0 {
		add("api.ws_client_id", "must not be negative")
	}

	if c.Stream.UpdateRate < 0 {
		add("stream.update_rate", "must not be negative")
	}
	if c.Stream.Burst < 0 {
		add("stream.burst", "must not be negative")
	}

	if !slices.Contains(validThemes, c.UI.Theme) {
		add("ui.theme", fmt.Sprintf("must be one of %s", strings.Join(validThemes, ", ")))
	}
	if c.UI.SidebarWidth != 0 && (c.UI.SidebarWidth < 16 || c.UI.SidebarWidth > 80) {
		add("ui.sidebar_width", "must be 0 or between 16 and 80")
	}
	if c.UI.SessionLimit < 0 || c.UI.SessionLimit > 1000 {
		add("ui.session_limit", "must be between 0 and 1000")
	}

	if !slices.Contains(validLogLevels, c.Log.Level) {
		add("log.level", fmt.Sprintf("must be one of %s", strings.Join(validLogLevels, ", ")))
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		add("log.format", fmt.Sprintf("must be one of %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.base_url").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if d, ok := field.Interface().(Duration); ok {
		return d.String(), nil
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
// String values are converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, strings.ReplaceAll(part, "-", "_"))
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an arbitrary value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(strVal))
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				switch strings.ToLower(strVal) {
				case "yes", "on":
					boolVal = true
				case "no", "off":
					boolVal = false
				default:
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := range t.NumField() {
		section, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		st := t.Field(i).Type
		for j := range st.NumField() {
			name, _, _ := strings.Cut(st.Field(j).Tag.Get("toml"), ",")
			keys = append(keys, section+"."+name)
		}
	}
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as TOML for display.
// SECURITY: The token is redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Token != "" {
		safe.API.Token = "[REDACTED]"
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}
