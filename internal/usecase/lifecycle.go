package usecase

import "context"

// Component is the two-phase lifecycle contract shared by the long-running
// parts of the pipeline: a pure constructor followed by explicit Start/Stop.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() error
}
