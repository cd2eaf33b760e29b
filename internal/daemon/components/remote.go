package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/daemon"
	"github.com/harunnryd/archivist/internal/webui"
)

// RemoteComponent owns the knowledge API client. It does not fail startup
// when the API is down; the loops skip cycles until it comes back.
type RemoteComponent struct {
	cfg    *config.Config
	mu     sync.RWMutex
	client *webui.Client
}

func NewRemoteComponent(cfg *config.Config) *RemoteComponent {
	return &RemoteComponent{cfg: cfg}
}

func (r *RemoteComponent) Name() string {
	return "Remote"
}

func (r *RemoteComponent) Dependencies() []string {
	return []string{}
}

func (r *RemoteComponent) Init(ctx context.Context) error {
	client, err := BuildClient(r.cfg)
	if err != nil {
		return fmt.Errorf("create webui client: %w", err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()

	if !client.IsReachable(ctx) {
		slog.Warn("Open WebUI not reachable yet, cycles will be skipped until it is", "base_url", r.cfg.WebUI.BaseURL)
	}
	slog.Info("Remote initialized", "component", r.Name(), "base_url", r.cfg.WebUI.BaseURL, "fallback_tokens", len(r.cfg.WebUI.FallbackTokens))
	return nil
}

func (r *RemoteComponent) Start(ctx context.Context) error {
	if r.Client() == nil {
		return fmt.Errorf("Remote not initialized")
	}
	return nil
}

func (r *RemoteComponent) Stop(ctx context.Context) error {
	return nil
}

func (r *RemoteComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	client := r.Client()
	if client == nil {
		return &daemon.ComponentHealth{Name: r.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !client.IsReachable(ctx) {
		return &daemon.ComponentHealth{Name: r.Name(), Healthy: false, Error: fmt.Errorf("open webui unreachable")}, nil
	}
	return &daemon.ComponentHealth{Name: r.Name(), Healthy: true}, nil
}

func (r *RemoteComponent) Client() *webui.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}
