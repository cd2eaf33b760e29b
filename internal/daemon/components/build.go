package components

import (
	"fmt"
	"time"

	"github.com/harunnryd/archivist/internal/archiver"
	"github.com/harunnryd/archivist/internal/collection"
	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/history"
	"github.com/harunnryd/archivist/internal/naming"
	"github.com/harunnryd/archivist/internal/reaper"
	"github.com/harunnryd/archivist/internal/state"
	"github.com/harunnryd/archivist/internal/store"
	"github.com/harunnryd/archivist/internal/webui"
)

// BuildClient creates the knowledge API client with the configured
// fallback credentials: the explicit token list first, then the users file.
func BuildClient(cfg *config.Config) (*webui.Client, error) {
	timeout, err := config.DurationOrDefault(cfg.WebUI.Timeout, config.DefaultWebUITimeout)
	if err != nil {
		return nil, fmt.Errorf("parse webui timeout: %w", err)
	}
	healthTimeout, err := config.DurationOrDefault(cfg.WebUI.HealthTimeout, config.DefaultWebUIHealthTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse webui health timeout: %w", err)
	}

	var fallbacks []webui.CredentialProvider
	if len(cfg.WebUI.FallbackTokens) > 0 {
		fallbacks = append(fallbacks, webui.TokensToCredentials("fallback", cfg.WebUI.FallbackTokens))
	}
	if cfg.WebUI.UsersFile != "" {
		fallbacks = append(fallbacks, webui.UsersFile{Path: cfg.WebUI.UsersFile})
	}

	return webui.New(webui.Options{
		BaseURL:       cfg.WebUI.BaseURL,
		Token:         cfg.WebUI.Token,
		Timeout:       timeout,
		HealthTimeout: healthTimeout,
		HealthPath:    cfg.WebUI.HealthPath,
		Fallbacks:     fallbacks,
	})
}

// NewResolver reads the model mapping lazily; it is reloaded on every cycle.
func NewResolver(cfg *config.Config) *collection.Resolver {
	return collection.NewResolver(cfg.Archive.CollectionsFile, cfg.Archive.DefaultKnowledgeID)
}

func NewRenderer(cfg *config.Config) *naming.Renderer {
	template := cfg.Archive.FilenameTemplate
	if template == "" {
		template = config.DefaultArchiveFilenameTemplate
	}
	return naming.NewRenderer(template)
}

type StateDeps struct {
	Layout   store.Layout
	Index    *state.ArchivedIndex
	Attempts *state.Attempts
	History  history.Recorder
}

func BuildArchiver(cfg *config.Config, remote archiver.Remote, deps StateDeps) (*archiver.Archiver, error) {
	return archiver.New(archiver.Deps{
		Remote:       remote,
		Resolver:     NewResolver(cfg),
		Renderer:     NewRenderer(cfg),
		Index:        deps.Index,
		Attempts:     deps.Attempts,
		History:      deps.History,
		Layout:       deps.Layout,
		PerKnowledge: cfg.Archive.PerKnowledge,
		MaxRetries:   cfg.Archive.MaxRetries,
	})
}

func BuildReaper(cfg *config.Config, remote reaper.Remote, deps StateDeps, dryRun bool) (*reaper.Reaper, error) {
	return reaper.New(reaper.Deps{
		Remote:              remote,
		Resolver:            NewResolver(cfg),
		Renderer:            NewRenderer(cfg),
		Index:               deps.Index,
		History:             deps.History,
		ArchiveDir:          deps.Layout.Archive,
		DefaultCollectionID: cfg.Archive.DefaultKnowledgeID,
		DryRun:              dryRun,
	})
}

// Intervals returns the archive and reap intervals. The reap interval
// defaults to the archive interval.
func Intervals(cfg *config.Config) (time.Duration, time.Duration, error) {
	archiveEvery, err := config.DurationOrDefault(cfg.Archive.Interval, config.DefaultArchiveInterval)
	if err != nil {
		return 0, 0, fmt.Errorf("parse archive interval: %w", err)
	}
	reapEvery, err := config.DurationOrDefault(cfg.Reap.Interval, archiveEvery.String())
	if err != nil {
		return 0, 0, fmt.Errorf("parse reap interval: %w", err)
	}
	return archiveEvery, reapEvery, nil
}
