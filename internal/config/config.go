// Package config provides configuration management backed by a JSON file.
// It supports loading, saving and partial updates of the service settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"pdfdesk/internal/layout"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Font    FontConfig    `json:"font"`
	Layout  LayoutConfig  `json:"layout"`
	History HistoryConfig `json:"history"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int `json:"port"`
	MaxUploadMB int `json:"max_upload_mb"`
	MaxFiles    int `json:"max_files"`
	// AccessKeyHash is a bcrypt hash; when set, requests must send the
	// matching key in X-Access-Key.
	AccessKeyHash string `json:"access_key_hash"`
}

// FontConfig locates the TrueType font used for text pages.
type FontConfig struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// LayoutConfig holds text page geometry in points.
type LayoutConfig struct {
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	Margin     float64 `json:"margin"`
	FontSize   float64 `json:"font_size"`
	LineHeight float64 `json:"line_height"`
}

// Geometry converts the layout settings for the paginator.
func (l LayoutConfig) Geometry() layout.Geometry {
	return layout.Geometry{
		Width:      l.PageWidth,
		Height:     l.PageHeight,
		Margin:     l.Margin,
		FontSize:   l.FontSize,
		LineHeight: l.LineHeight,
	}
}

// HistoryConfig controls the job journal.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"db_path"`

	// RetentionDays is how long jobs are kept; 0 keeps them forever.
	RetentionDays int `json:"retention_days"`
}

const defaultRetentionDays = 90

// LogConfig controls the error log.
type LogConfig struct {
	Dir        string `json:"dir"`
	RotationMB int    `json:"rotation_mb"`
}

// ConfigManager manages loading, saving, and updating configuration.
type ConfigManager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewConfigManager creates a new ConfigManager for the given config file path.
func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{configPath: configPath}
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	g := layout.DefaultGeometry()
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MaxUploadMB: 100,
			MaxFiles:    50,
		},
		Font: FontConfig{
			Path: "./data/fonts/DejaVuSans.ttf",
		},
		Layout: LayoutConfig{
			PageWidth:  g.Width,
			PageHeight: g.Height,
			Margin:     g.Margin,
			FontSize:   g.FontSize,
			LineHeight: g.LineHeight,
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "./data/pdfdesk.db",
			RetentionDays: defaultRetentionDays,
		},
		Log: LogConfig{
			Dir:        "./data/logs",
			RotationMB: 100,
		},
	}
}

// Load reads the config file from disk. If the file does not exist, it
// initializes with default values and saves.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cm.config = DefaultConfig()
			return cm.saveLocked()
		}
		return fmt.Errorf("read config file: %w", err)
	}

	// Fields absent from the file keep these values.
	cfg := Config{History: HistoryConfig{Enabled: true, RetentionDays: defaultRetentionDays}}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)
	cm.config = &cfg
	return nil
}

// Save writes the current config to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.saveLocked()
}

// saveLocked writes config to disk. Caller must hold at least a read lock.
func (cm *ConfigManager) saveLocked() error {
	if cm.config == nil {
		return errors.New("no config loaded")
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(cm.configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.config == nil {
		return nil
	}
	c := *cm.config
	return &c
}

// Update applies partial updates keyed by dotted names (e.g. "server.port")
// and saves to disk. Either every update applies or none does.
func (cm *ConfigManager) Update(updates map[string]interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := cm.applyLocked(updates); err != nil {
		return err
	}
	return cm.saveLocked()
}

// Override applies updates in memory only. It is used for command line flags
// and environment variables, which must not be written back to the file.
func (cm *ConfigManager) Override(updates map[string]interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.applyLocked(updates)
}

func (cm *ConfigManager) applyLocked(updates map[string]interface{}) error {
	if cm.config == nil {
		cm.config = DefaultConfig()
	}
	next := *cm.config
	for key, val := range updates {
		if err := applyUpdate(&next, key, val); err != nil {
			return fmt.Errorf("update key %q: %w", key, err)
		}
	}
	cm.config = &next
	return nil
}

func applyUpdate(cfg *Config, key string, val interface{}) error {
	switch key {
	// Server fields
	case "server.port":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 1 || n > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.Server.Port = n
	case "server.max_upload_mb":
		n, err := toPositiveInt(val)
		if err != nil {
			return err
		}
		cfg.Server.MaxUploadMB = n
	case "server.max_files":
		n, err := toPositiveInt(val)
		if err != nil {
			return err
		}
		cfg.Server.MaxFiles = n
	case "server.access_key_hash":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cfg.Server.AccessKeyHash = s
	case "server.access_key":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		if s == "" {
			cfg.Server.AccessKeyHash = ""
			return nil
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash access key: %w", err)
		}
		cfg.Server.AccessKeyHash = string(hash)

	// Font fields
	case "font.path":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cfg.Font.Path = s
	case "font.url":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cfg.Font.URL = s

	// Layout fields
	case "layout.page_width":
		return setPositiveFloat(&cfg.Layout.PageWidth, val)
	case "layout.page_height":
		return setPositiveFloat(&cfg.Layout.PageHeight, val)
	case "layout.margin":
		return setPositiveFloat(&cfg.Layout.Margin, val)
	case "layout.font_size":
		return setPositiveFloat(&cfg.Layout.FontSize, val)
	case "layout.line_height":
		return setPositiveFloat(&cfg.Layout.LineHeight, val)

	// History fields
	case "history.enabled":
		b, ok := val.(bool)
		if !ok {
			return errors.New("expected boolean")
		}
		cfg.History.Enabled = b
	case "history.db_path":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cfg.History.DBPath = s
	case "history.retention_days":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.New("value must not be negative")
		}
		cfg.History.RetentionDays = n

	// Log fields
	case "log.dir":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cfg.Log.Dir = s
	case "log.rotation_mb":
		n, err := toPositiveInt(val)
		if err != nil {
			return err
		}
		cfg.Log.RotationMB = n

	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// applyDefaults fills in zero-value fields with defaults.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = defaults.Server.MaxUploadMB
	}
	if cfg.Server.MaxFiles == 0 {
		cfg.Server.MaxFiles = defaults.Server.MaxFiles
	}
	if cfg.Font.Path == "" {
		cfg.Font.Path = defaults.Font.Path
	}
	if cfg.Layout.PageWidth == 0 {
		cfg.Layout.PageWidth = defaults.Layout.PageWidth
	}
	if cfg.Layout.PageHeight == 0 {
		cfg.Layout.PageHeight = defaults.Layout.PageHeight
	}
	if cfg.Layout.Margin == 0 {
		cfg.Layout.Margin = defaults.Layout.Margin
	}
	if cfg.Layout.FontSize == 0 {
		cfg.Layout.FontSize = defaults.Layout.FontSize
	}
	if cfg.Layout.LineHeight == 0 {
		cfg.Layout.LineHeight = defaults.Layout.LineHeight
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = defaults.History.DBPath
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = defaults.Log.Dir
	}
	if cfg.Log.RotationMB == 0 {
		cfg.Log.RotationMB = defaults.Log.RotationMB
	}
}

// Validate checks settings that would make text pages impossible to lay out.
func (c *Config) Validate() error {
	l := c.Layout
	if 2*l.Margin >= l.PageWidth {
		return fmt.Errorf("layout: margins (%.1f) leave no text width on a %.1fpt page", l.Margin, l.PageWidth)
	}
	if l.Margin+l.LineHeight > l.PageHeight-l.Margin {
		return fmt.Errorf("layout: a %.1fpt line does not fit between the margins", l.LineHeight)
	}
	if l.FontSize > l.LineHeight {
		return fmt.Errorf("layout: font size %.1f exceeds line height %.1f", l.FontSize, l.LineHeight)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history: retention_days must not be negative")
	}
	return nil
}

// --- Type conversion helpers ---

func setPositiveFloat(dst *float64, val interface{}) error {
	f, err := toFloat64(val)
	if err != nil {
		return err
	}
	if f <= 0 {
		return errors.New("value must be positive")
	}
	*dst = f
	return nil
}

func toPositiveInt(val interface{}) (int, error) {
	n, err := toInt(val)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("value must be positive")
	}
	return n, nil
}

func toFloat64(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", val)
	}
}

func toInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", val)
	}
}
