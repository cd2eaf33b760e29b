package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	WebUI   WebUIConfig   `koanf:"webui" yaml:"webui"`
	Archive ArchiveConfig `koanf:"archive" yaml:"archive"`
	Reap    ReapConfig    `koanf:"reap" yaml:"reap"`
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Daemon  DaemonConfig  `koanf:"daemon" yaml:"daemon"`
}

type WebUIConfig struct {
	BaseURL        string   `koanf:"base_url" yaml:"base_url"`
	Token          string   `koanf:"token" yaml:"token"`
	Timeout        string   `koanf:"timeout" yaml:"timeout"`
	HealthTimeout  string   `koanf:"health_timeout" yaml:"health_timeout"`
	HealthPath     string   `koanf:"health_path" yaml:"health_path"`
	FallbackTokens []string `koanf:"fallback_tokens" yaml:"fallback_tokens"`
	UsersFile      string   `koanf:"users_file" yaml:"users_file"`
}

type ArchiveConfig struct {
	MemoryDir          string `koanf:"memory_dir" yaml:"memory_dir"`
	ArchiveDir         string `koanf:"archive_dir" yaml:"archive_dir"`
	CollectionsFile    string `koanf:"collections_file" yaml:"collections_file"`
	DefaultKnowledgeID string `koanf:"default_knowledge_id" yaml:"default_knowledge_id"`
	FilenameTemplate   string `koanf:"filename_template" yaml:"filename_template"`
	Interval           string `koanf:"interval" yaml:"interval"`
	Schedule           string `koanf:"schedule" yaml:"schedule"`
	PerKnowledge       bool   `koanf:"per_knowledge" yaml:"per_knowledge"`
	MaxRetries         int    `koanf:"max_retries" yaml:"max_retries"`
	Watch              bool   `koanf:"watch" yaml:"watch"`
}

type ReapConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Interval string `koanf:"interval" yaml:"interval"`
}

type ServerConfig struct {
	Enabled         bool   `koanf:"enabled" yaml:"enabled"`
	Port            int    `koanf:"port" yaml:"port"`
	LogLevel        string `koanf:"log_level" yaml:"log_level"`
	ReadTimeout     string `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval" yaml:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout" yaml:"startup_shutdown_timeout"`
	StaleLockTTL           string `koanf:"stale_lock_ttl" yaml:"stale_lock_ttl"`
}

const (
	EnvPrefix = "ARCHIVIST_"

	DefaultWebUIBaseURL                 = "http://open-webui:8080"
	DefaultWebUITimeout                 = "30s"
	DefaultWebUIHealthTimeout           = "5s"
	DefaultWebUIHealthPath              = "/api/v1/health"
	DefaultWebUIUsersFile               = "/app/user_api.json"
	DefaultArchiveMemoryDir             = "/app/memory"
	DefaultArchiveCollectionsFile       = "/app/model_collections.json"
	DefaultArchiveFilenameTemplate      = "conversation_{datetime}.txt"
	DefaultArchiveInterval              = "10s"
	DefaultArchivePerKnowledge          = false
	DefaultArchiveMaxRetries            = 5
	DefaultArchiveWatch                 = false
	DefaultReapEnabled                  = true
	DefaultServerEnabled                = true
	DefaultServerPort                   = 9000
	DefaultServerLogLevel               = "info"
	DefaultServerReadTimeout            = "10s"
	DefaultServerWriteTimeout           = "60s"
	DefaultServerIdleTimeout            = "60s"
	DefaultServerShutdownTimeout        = "5s"
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonStaleLockTTL           = "15m"
	DefaultStoreLockTimeout             = "5s"
	DefaultStoreLockRetry               = "100ms"
	DefaultStoreLockMaxRetry            = 50
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"webui.base_url":                  DefaultWebUIBaseURL,
		"webui.timeout":                   DefaultWebUITimeout,
		"webui.health_timeout":            DefaultWebUIHealthTimeout,
		"webui.health_path":               DefaultWebUIHealthPath,
		"webui.users_file":                DefaultWebUIUsersFile,
		"archive.memory_dir":              DefaultArchiveMemoryDir,
		"archive.collections_file":        DefaultArchiveCollectionsFile,
		"archive.filename_template":       DefaultArchiveFilenameTemplate,
		"archive.interval":                DefaultArchiveInterval,
		"archive.per_knowledge":           DefaultArchivePerKnowledge,
		"archive.max_retries":             DefaultArchiveMaxRetries,
		"archive.watch":                   DefaultArchiveWatch,
		"reap.enabled":                    DefaultReapEnabled,
		"server.enabled":                  DefaultServerEnabled,
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
		"daemon.stale_lock_ttl":           DefaultDaemonStaleLockTTL,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".archivist", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment names used by the original container deployment
	if err := applyLegacyEnv(k); err != nil {
		return nil, err
	}

	// ARCHIVIST_SECTION_KEY -> section.key (the first underscore splits the section)
	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	tokens, err := splitTokens(cfg.WebUI.FallbackTokens)
	if err != nil {
		return nil, fmt.Errorf("parse webui.fallback_tokens: %w", err)
	}
	cfg.WebUI.FallbackTokens = tokens

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports configuration that makes the archivist unable to run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WebUI.Token) == "" {
		return fmt.Errorf("webui.token is required (set %sWEBUI_TOKEN or WEBUI_TOKEN)", EnvPrefix)
	}
	if strings.TrimSpace(c.WebUI.BaseURL) == "" {
		return fmt.Errorf("webui.base_url is required")
	}
	if strings.TrimSpace(c.Archive.MemoryDir) == "" {
		return fmt.Errorf("archive.memory_dir is required")
	}
	if c.Archive.MaxRetries < 0 {
		return fmt.Errorf("archive.max_retries must not be negative")
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	interval, err := PositiveDuration("archive.interval", c.Archive.Interval, DefaultArchiveInterval)
	if err != nil {
		return err
	}
	if _, err := PositiveDuration("reap.interval", c.Reap.Interval, interval.String()); err != nil {
		return err
	}
	return nil
}

// ArchiveDir returns the directory archived transcripts are moved into.
func (c *Config) ArchiveDir() string {
	if c.Archive.ArchiveDir != "" {
		return c.Archive.ArchiveDir
	}
	return filepath.Join(c.Archive.MemoryDir, "archived")
}

// LogDir returns the directory holding the plain and history logs.
func (c *Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return filepath.Join(c.Archive.MemoryDir, "logs")
}

func splitTokens(values []string) ([]string, error) {
	var out []string
	for _, value := range values {
		parts, err := shlex.Split(value)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	fields := []*string{
		&cfg.Archive.MemoryDir,
		&cfg.Archive.ArchiveDir,
		&cfg.Archive.CollectionsFile,
		&cfg.WebUI.UsersFile,
		&cfg.Log.Dir,
	}
	for _, field := range fields {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
