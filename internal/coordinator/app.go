// Package coordinator owns the experiment-matrix driver described in
// spec.md §4.1: for each combination in the experiment cross-product it
// selects hosts, builds a distribution.Base, and runs pre/run/post.
package coordinator

import (
	"context"
	"fmt"

	"distscan/internal/config"
	"distscan/internal/model"
	"distscan/internal/pkg/logger"
)

// App bootstraps the coordinator process: config, logger, and the
// engine's own RPC callback address.
type App struct {
	Config  *config.Config
	OwnAddr model.CoordinatorAddr
}

// Options configures NewApp.
type Options struct {
	ConfigPath string
	OwnAddress string
	OwnPort    int
	Debug      bool
}

// NewApp loads configuration and initializes logging, following the
// teacher's bootstrap-with-graceful-degradation shape: config errors are
// fatal (spec.md §7 category 1), but nothing else here can fail softly
// since the coordinator has no optional external dependency to degrade.
func NewApp(opts Options) (*App, error) {
	level := "info"
	if opts.Debug {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{
		Level: level, Format: "text", Output: "stdout", Component: "coordinator",
	}); err != nil {
		return nil, fmt.Errorf("coordinator: init logger: %w", err)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: load config: %w", err)
	}

	return &App{
		Config:  cfg,
		OwnAddr: model.CoordinatorAddr{Address: opts.OwnAddress, Port: opts.OwnPort},
	}, nil
}

// Run executes every experiment instance in the configured cross
// product, in the order described in spec.md §4.1 / the original's
// run(): count outermost, then distribution method, scan method, scan
// timing, scanner count, target count.
func (a *App) Run(ctx context.Context) error {
	return RunExperimentMatrix(ctx, a.Config, a.OwnAddr)
}
