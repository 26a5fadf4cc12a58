package httpapi

import (
	"context"
	"sync/atomic"

	"marketpipe-engine/internal/config"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/events"
	"marketpipe-engine/internal/pipeline"
	"marketpipe-engine/internal/store"
)

// PipelineRunner is what the handlers need from the pipeline; injected so
// handler tests can stub runs.
type PipelineRunner interface {
	RunAll(ctx context.Context) error
	RunStage(ctx context.Context, stage string) (*domain.Job, error)
	RunReconcile(ctx context.Context, params pipeline.ReconcileParams) (*domain.Job, error)
}

type Deps struct {
	Store *store.Store
	Hub   *events.Hub

	Pipeline PipelineRunner

	// ReapNow triggers one reaper sweep outside the schedule.
	ReapNow func(ctx context.Context) ([]string, error)

	// Atomic stores
	CfgVal     *atomic.Value // stores config.Config
	PipeStatus *atomic.Value // stores httpapi.PipelineStatus

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}
