package daemon

import (
	"context"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe. Details
// carries loop state such as the last cycle time for the /health endpoint.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
	Details map[string]interface{}
}

// Component is a unit the daemon starts and stops. Init runs in dependency
// order; Stop runs in reverse registration order and must tolerate a
// component that never started.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
