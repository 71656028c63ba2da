package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"distscan/internal/config"
	"distscan/internal/distribution"
	"distscan/internal/model"
	"distscan/internal/pkg/logger"
)

// RunExperimentMatrix iterates the full experiment cross-product from
// spec.md §3/§6: repetition count outermost, then distribution method,
// scan method, scan timing, scanner count, target count. Each iteration
// selects a random subset of the configured hosts and runs one
// experiment instance to completion before moving to the next.
func RunExperimentMatrix(ctx context.Context, cfg *config.Config, ownAddr model.CoordinatorAddr) error {
	exp := cfg.Experiments

	for n := 0; n < exp.Count; n++ {
		for _, method := range exp.DistributionMethods {
			strategy, ok := strategyFor(method, exp.PollIntervalMS)
			if !ok {
				continue
			}

			for _, scanMethod := range exp.ScanMethods {
				for _, scanTiming := range exp.ScanTimings {
					for _, nbScanners := range exp.ScannerNumberValues {
						for _, nbTargets := range exp.TargetNumberValues {
							if err := runOne(ctx, cfg, ownAddr, method, strategy, scanMethod, scanTiming, nbScanners, nbTargets); err != nil {
								logger.Error("coordinator: experiment instance failed", err, map[string]interface{}{
									"method": method, "scan_method": scanMethod, "scan_timing": scanTiming,
								})
							}
						}
					}
				}
			}
		}
	}
	return nil
}

// strategyFor builds the Strategy for method. pollIntervalMS, when
// positive, overrides the parallel strategy's idle event-queue poll
// interval (config.ExperimentsConfig.PollIntervalMS); zero keeps the
// strategy's built-in default.
func strategyFor(method string, pollIntervalMS int) (distribution.Strategy, bool) {
	switch method {
	case "naive":
		return distribution.Naive{}, true
	case "parallel":
		var interval time.Duration
		if pollIntervalMS > 0 {
			interval = time.Duration(pollIntervalMS) * time.Millisecond
		}
		return distribution.Parallel{PollInterval: interval}, true
	default:
		return nil, false
	}
}

func runOne(
	ctx context.Context,
	cfg *config.Config,
	ownAddr model.CoordinatorAddr,
	method string,
	strategy distribution.Strategy,
	scanMethod, scanTiming string,
	nbScanners, nbTargets int,
) error {
	runID := uuid.NewString()
	inst := distribution.Instance{
		ID:              runID,
		Method:          method,
		ScanMethod:      scanMethod,
		ScanTiming:      scanTiming,
		Scanners:        sampleHosts(cfg.Hosts.Scanners, nbScanners),
		Firewalls:       cfg.Hosts.Firewalls,
		Targets:         sampleHosts(cfg.Hosts.Targets, nbTargets),
		Ports:           cfg.Experiments.Ports,
		FirewallArg:     cfg.Experiments.FirewallArgs,
		CoordinatorAddr: ownAddr,
	}

	runLog := runLogName(method, scanMethod, scanTiming, nbScanners, nbTargets, runID)
	logger.Info("coordinator: pre_experiment", map[string]interface{}{
		"run_id": runID, "run_log": runLog, "method": method, "scan_method": scanMethod, "scan_timing": scanTiming,
		"nb_scanners": nbScanners, "nb_targets": nbTargets,
	})

	base := distribution.NewBase(inst)
	if err := base.PreExperiment(ctx); err != nil {
		return err
	}

	logger.Info("coordinator: run_experiment", map[string]interface{}{"run_id": runID, "method": method})
	runErr := strategy.Run(ctx, base, inst)
	if runErr != nil {
		logger.Warn("coordinator: run_experiment returned an error, still tearing down", map[string]interface{}{"run_id": runID, "error": runErr.Error()})
	}

	logger.Info("coordinator: post_experiment", map[string]interface{}{"run_id": runID, "method": method})
	asr, err := base.PostExperiment(ctx)
	if err != nil {
		return err
	}

	logger.Info("coordinator: experiment instance complete", map[string]interface{}{
		"run_id": runID, "method": method, "scan_method": scanMethod, "scan_timing": scanTiming, "asr": asr,
	})
	return runErr
}

// runLogName mirrors the source's per-run log filename convention, with
// the wall-clock timestamp suffix replaced by a UUID so concurrent runs
// sharing a second never collide.
func runLogName(method, scanMethod, scanTiming string, nbScanners, nbTargets int, runID string) string {
	return fmt.Sprintf("%s-%s-%s-%d-%d-%s.log", method, scanMethod, scanTiming, nbScanners, nbTargets, runID)
}

// sampleHosts picks n hosts at random without replacement, matching the
// source's random.sample over the configured host pool.
func sampleHosts(hosts []model.Host, n int) []model.Host {
	if n >= len(hosts) {
		out := make([]model.Host, len(hosts))
		copy(out, hosts)
		return out
	}
	perm := rand.Perm(len(hosts))
	out := make([]model.Host, n)
	for i := 0; i < n; i++ {
		out[i] = hosts[perm[i]]
	}
	return out
}
