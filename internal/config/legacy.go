package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/knadh/koanf/v2"
)

// LegacyEnv holds the environment names the archivist container was first
// deployed with. Values are kept as strings so an unset variable never
// overrides a default.
type LegacyEnv struct {
	WebUIAPI           string `env:"WEBUI_API"`
	WebUIToken         string `env:"WEBUI_TOKEN"`
	TimeLoop           string `env:"TIMELOOP"`
	FilenameTemplate   string `env:"FILENAME_TEMPLATE"`
	DefaultKnowledgeID string `env:"DEFAULT_KNOWLEDGE_ID"`
	PerKnowledge       string `env:"ARCHIVE_PER_KNOWLEDGE"`
	MemoryDir          string `env:"MEMORY_DIR"`
	CollectionsFile    string `env:"COLLECTIONS_FILE"`
	UsersAPI           string `env:"USERS_API"`
	MaxRetries         string `env:"MAX_RETRIES"`
}

func applyLegacyEnv(k *koanf.Koanf) error {
	var legacy LegacyEnv
	if err := env.Parse(&legacy); err != nil {
		return fmt.Errorf("parse legacy environment: %w", err)
	}

	values, err := legacy.values()
	if err != nil {
		return err
	}
	for key, value := range values {
		k.Set(key, value)
	}
	return nil
}

func (l LegacyEnv) values() (map[string]interface{}, error) {
	out := make(map[string]interface{})

	strs := map[string]string{
		"webui.base_url":               l.WebUIAPI,
		"webui.token":                  l.WebUIToken,
		"webui.users_file":             l.UsersAPI,
		"archive.filename_template":    l.FilenameTemplate,
		"archive.default_knowledge_id": l.DefaultKnowledgeID,
		"archive.memory_dir":           l.MemoryDir,
		"archive.collections_file":     l.CollectionsFile,
	}
	for key, value := range strs {
		if strings.TrimSpace(value) != "" {
			out[key] = strings.TrimSpace(value)
		}
	}

	if v := strings.TrimSpace(l.TimeLoop); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("TIMELOOP must be a number of seconds: %w", err)
		}
		out["archive.interval"] = fmt.Sprintf("%ds", seconds)
	}
	if v := strings.TrimSpace(l.PerKnowledge); v != "" {
		out["archive.per_knowledge"] = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(l.MaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_RETRIES must be an integer: %w", err)
		}
		out["archive.max_retries"] = n
	}

	return out, nil
}
