// Package distribution implements the two ways an experiment instance
// dispatches portscan work to scanners, described in spec.md §4.2. Both
// strategies share a Base that owns subpart generation, RPC plumbing,
// monitor start/stop, traffic-map updates, and ASR fusion; strategies
// differ only in how they drive the dispatch loop.
package distribution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"distscan/internal/config"
	"distscan/internal/model"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

// teardownTimeout bounds the post-experiment stop/fetch phase. It is
// applied against a context independent of the experiment's own ctx (see
// PostExperiment), since spec.md §5 requires stop_monitor/stop_snitch to
// still be attempted after the coordinator is interrupted, at which
// point ctx is already cancelled.
const teardownTimeout = 10 * time.Second

// Instance describes one concrete experiment instance: a specific
// distribution method, scan method/timing, and host/port selection.
// It is the per-run analogue of spec.md §3's "experiment instance".
type Instance struct {
	// ID uniquely identifies this run for log correlation, replacing the
	// source's wall-clock-timestamp naming scheme with a collision-proof
	// identifier (see model.NewSubpartID for the same idea applied to
	// individual dispatches).
	ID          string
	Method      string
	ScanMethod  string
	ScanTiming  string
	Scanners    []model.Host
	Firewalls   []model.Host
	Targets     []model.Host
	Ports       []int
	FirewallArg config.FirewallArgs
	// CoordinatorAddr is where agents deliver add_event callbacks.
	CoordinatorAddr model.CoordinatorAddr
}

// Strategy is the capability every distribution method implements.
// Adding a third strategy means adding a type satisfying this interface,
// never touching Base.
type Strategy interface {
	Run(ctx context.Context, b *Base, inst Instance) error
}

// Base holds the mutable state of one experiment instance and the RPC
// proxies to reach its hosts. It is created fresh at pre-experiment and
// discarded at post-experiment, per spec.md §3 "Lifecycles".
type Base struct {
	inst Instance

	scannerClients  map[string]*rpc.ScannerClient
	firewallClients map[string]*rpc.FirewallClient
	targetClients   map[string]*rpc.TargetClient

	server *rpc.Server
	events *eventQueue

	mu        sync.Mutex
	portstate *model.PortStateObservations
	traffic   *model.TrafficObservations
	detected  map[string]bool
	jobs      int // in-flight dispatched subparts not yet resolved
}

// NewBase builds RPC proxies for every host in inst but does not start
// anything network-facing; call PreExperiment for that.
func NewBase(inst Instance) *Base {
	b := &Base{
		inst:            inst,
		scannerClients:  make(map[string]*rpc.ScannerClient, len(inst.Scanners)),
		firewallClients: make(map[string]*rpc.FirewallClient, len(inst.Firewalls)),
		targetClients:   make(map[string]*rpc.TargetClient, len(inst.Targets)),
		events:          newEventQueue(),
		portstate:       model.NewPortStateObservations(),
		traffic:         model.NewTrafficObservations(),
		detected:        make(map[string]bool),
	}
	for _, h := range inst.Scanners {
		b.scannerClients[h.Address] = rpc.NewScannerClient(h.Addr())
	}
	for _, h := range inst.Firewalls {
		b.firewallClients[h.Address] = rpc.NewFirewallClient(h.Addr())
	}
	for _, h := range inst.Targets {
		b.targetClients[h.Address] = rpc.NewTargetClient(h.Addr())
	}
	return b
}

// PreExperiment starts the coordinator's inbound add_event endpoint and
// instructs every target to begin passive sniffing, per spec.md §4.1.
// Firewall monitoring is NOT started here: only the parallel strategy
// uses live detection, so it owns that startup step.
func (b *Base) PreExperiment(ctx context.Context) error {
	b.server = rpc.NewServer(b.inst.CoordinatorAddr.Addr())
	rpc.Handle(b.server, "add_event", b.handleAddEvent)
	b.server.Start()

	scannerIPs := make([]string, 0, len(b.inst.Scanners))
	for _, h := range b.inst.Scanners {
		scannerIPs = append(scannerIPs, h.Address)
	}

	g, gctx := errgroup.WithContext(ctx)
	for ip, client := range b.targetClients {
		ip, client := ip, client
		g.Go(func() error {
			logger.Info("distribution: starting target monitor", map[string]interface{}{"target": ip})
			if err := client.StartMonitor(gctx, scannerIPs); err != nil {
				logger.Warn("distribution: start_monitor failed", map[string]interface{}{"target": ip, "error": err.Error()})
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Base) handleAddEvent(ctx context.Context, req *model.AddEventRequest) (*struct{}, error) {
	b.events.push(req.ToEvent())
	return nil, nil
}

// PostExperiment stops target sniffers and firewall snitches, fetches
// ground-truth data, computes ASR, and tears down the inbound endpoint.
// Teardown runs against its own bounded context rather than ctx: ctx is
// the experiment instance's run context, and on an interrupt-triggered
// shutdown it has already been cancelled by the time PostExperiment is
// reached — reusing it here would make every stop_monitor/stop_snitch
// call fail before it ever left the process, per spec.md §5's
// requirement that those calls still happen on interrupt.
func (b *Base) PostExperiment(ctx context.Context) (float64, error) {
	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	b.stopMonitoring(teardownCtx)
	b.updateTargetsData(teardownCtx)
	asr := b.ComputeASR()

	if b.server != nil {
		if err := b.server.Shutdown(); err != nil {
			logger.Warn("distribution: add_event server shutdown error", map[string]interface{}{"error": err.Error()})
		}
	}
	return asr, nil
}

func (b *Base) stopMonitoring(ctx context.Context) {
	for ip, client := range b.targetClients {
		logger.Info("distribution: stopping target monitor", map[string]interface{}{"target": ip})
		if err := client.StopMonitor(ctx); err != nil {
			logger.Warn("distribution: stop_monitor failed", map[string]interface{}{"target": ip, "error": err.Error()})
		}
	}
	for ip, client := range b.firewallClients {
		logger.Info("distribution: stopping firewall snitch", map[string]interface{}{"firewall": ip})
		if err := client.StopSnitch(ctx); err != nil {
			logger.Warn("distribution: stop_snitch failed", map[string]interface{}{"firewall": ip, "error": err.Error()})
		}
	}
}

// startFirewallMonitoring instructs every firewall to begin its log
// snitch. Only called by the parallel strategy, per spec.md §4.2.
func (b *Base) startFirewallMonitoring(ctx context.Context) {
	args := b.inst.FirewallArg
	for ip, client := range b.firewallClients {
		logger.Info("distribution: starting firewall snitch", map[string]interface{}{"firewall": ip})
		req := model.StartSnitchRequest{
			Patterns:    args.Patterns,
			LogFile:     args.LogFile,
			IntervalSec: args.Timing,
			Coordinator: b.inst.CoordinatorAddr,
		}
		if err := client.StartSnitch(ctx, req); err != nil {
			logger.Warn("distribution: start_snitch failed", map[string]interface{}{"firewall": ip, "error": err.Error()})
		}
	}
}

// updateTargetsData fetches each target's open-port list and captured
// traffic, populating portstate.targets (exactly once, per spec.md §3)
// and merging into traffic.targets.
func (b *Base) updateTargetsData(ctx context.Context) {
	portSet := make(map[int]bool, len(b.inst.Ports))
	for _, p := range b.inst.Ports {
		portSet[p] = true
	}

	for targetIP, client := range b.targetClients {
		logger.Info("distribution: fetching open ports", map[string]interface{}{"target": targetIP})
		openResp, err := client.GetOpenPorts(ctx)
		if err != nil {
			logger.Warn("distribution: get_open_ports failed", map[string]interface{}{"target": targetIP, "error": err.Error()})
			openResp = model.GetOpenPortsResponse{}
		}
		open := make(map[int]bool, len(openResp.Ports))
		for _, p := range openResp.Ports {
			open[p] = true
		}

		b.mu.Lock()
		if b.portstate.Targets[targetIP] == nil {
			b.portstate.Targets[targetIP] = make(map[int]model.PortState)
		}
		for p := range portSet {
			if open[p] {
				b.portstate.Targets[targetIP][p] = model.PortOpen
			} else {
				b.portstate.Targets[targetIP][p] = model.PortClosed
			}
		}
		b.mu.Unlock()

		logger.Info("distribution: fetching captured traffic", map[string]interface{}{"target": targetIP})
		trafficResp, err := client.GetTraffic(ctx)
		if err != nil {
			logger.Warn("distribution: get_traffic failed", map[string]interface{}{"target": targetIP, "error": err.Error()})
			continue
		}

		b.mu.Lock()
		if b.traffic.Targets[targetIP] == nil {
			b.traffic.Targets[targetIP] = make(map[string]map[int][]model.Packet)
		}
		for scanner, ports := range trafficResp.Traffic {
			if b.traffic.Targets[targetIP][scanner] == nil {
				b.traffic.Targets[targetIP][scanner] = make(map[int][]model.Packet)
			}
			for port, pkts := range ports {
				b.traffic.Targets[targetIP][scanner][port] = append(b.traffic.Targets[targetIP][scanner][port], pkts...)
			}
		}
		b.mu.Unlock()
	}
}

// ComputeASR implements spec.md §4.1's ASR computation. For T=0 (no
// ports configured) this returns 1.0: a vacuous experiment scanned
// everything it was asked to, per SPEC_FULL.md's Open Question
// resolution rather than dividing by zero.
func (b *Base) ComputeASR() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	portsPerHost := len(b.inst.Ports)
	total := portsPerHost * len(b.inst.Targets)
	if total == 0 {
		logger.Info("distribution: zero-port experiment, ASR defined as vacuous 1.0", nil)
		return 1.0
	}

	successful := 0
	for target, ports := range b.portstate.Scanners {
		localSuccess := 0
		for port, found := range ports {
			groundTruth, ok := b.portstate.Targets[target][port]
			if !ok || groundTruth != found.State {
				logger.Debug("distribution: port state mismatch", map[string]interface{}{
					"target": target, "port": port, "found": found.State, "truth": groundTruth,
				})
				continue
			}

			if !b.trafficConfirmed(target, port, found.Scanner) {
				continue
			}

			localSuccess++
			successful++
		}
		logger.Info("distribution: target scan summary", map[string]interface{}{
			"target": target, "ports_scanned": len(ports), "ports_successful": localSuccess,
		})
	}

	if successful > total {
		successful = total
	}
	asr := float64(successful) / float64(total)
	logger.Info("distribution: experiment ASR computed", map[string]interface{}{
		"successful": successful, "total": total, "asr": asr,
	})
	return asr
}

// trafficConfirmed checks that every packet the scanner recorded for
// (target, port) has a matching entry in what the target's sniffer
// captured from that scanner. Matching rule per spec.md §4.1: flags+seq
// equality, except flags-only for the connect-style scan.
func (b *Base) trafficConfirmed(target string, port int, scanner string) bool {
	sentPkts := b.traffic.Scanners[scanner][target][port]

	targetPkts, ok := b.traffic.Targets[target][scanner]
	if !ok {
		logger.Debug("distribution: target never saw scanner", map[string]interface{}{"target": target, "scanner": scanner})
		return false
	}
	received := targetPkts[port]

	for _, sent := range sentPkts {
		matched := false
		for _, rcvd := range received {
			if sent.Matches(rcvd, b.inst.ScanMethod) {
				matched = true
				break
			}
		}
		if !matched {
			logger.Debug("distribution: unconfirmed scanner packet", map[string]interface{}{
				"scanner": scanner, "target": target, "port": port, "packet": sent,
			})
			return false
		}
	}
	return true
}

// updatePortState merges a scanner's reported classifications into
// portstate.scanners, keyed by target then port. Idempotent: applying
// the same ports_state twice overwrites with identical values.
func (b *Base) updatePortState(ports map[int]model.ScannerPortStateEntry, scanner, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.portstate.Scanners[target] == nil {
		b.portstate.Scanners[target] = make(map[int]model.ScannerPortState)
	}
	for port, entry := range ports {
		b.portstate.Scanners[target][port] = model.ScannerPortState{State: entry.State, Scanner: scanner}
	}
}

// updateTraffic merges a scanner's generated traffic into
// traffic.scanners, keyed by scanner then target then port. Keyed
// consistently as [scanner][target][port] — the source's
// update_traffic indexes by [scanner][port], dropping target; this
// does not replicate that bug.
func (b *Base) updateTraffic(generated map[string]map[int][]model.Packet, scanner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.traffic.Scanners[scanner] == nil {
		b.traffic.Scanners[scanner] = make(map[string]map[int][]model.Packet)
	}
	for target, ports := range generated {
		if b.traffic.Scanners[scanner][target] == nil {
			b.traffic.Scanners[scanner][target] = make(map[int][]model.Packet)
		}
		for port, pkts := range ports {
			b.traffic.Scanners[scanner][target][port] = append(b.traffic.Scanners[scanner][target][port], pkts...)
		}
	}
}

// fetchAndMergeScanner pulls a scanner's accumulated scan_state and
// folds it into portstate/traffic. Shared by every strategy so both
// completion and detection handling stay identical.
func (b *Base) fetchAndMergeScanner(ctx context.Context, scanner, target string) error {
	client, ok := b.scannerClients[scanner]
	if !ok {
		return fmt.Errorf("distribution: unknown scanner %q", scanner)
	}
	state, err := client.ScanState(ctx)
	if err != nil {
		return fmt.Errorf("distribution: scan_state(%s): %w", scanner, err)
	}
	b.updatePortState(state.PortState, scanner, target)
	b.updateTraffic(state.Traffic, scanner)
	return nil
}

// dispatchSubpart pops one subpart and sends it to scanner, recording
// an in-flight job. Returns false if subparts is empty.
func (b *Base) dispatchSubpart(ctx context.Context, subparts *[]model.Subpart, scanner string) bool {
	if len(*subparts) == 0 {
		return false
	}
	sp := (*subparts)[len(*subparts)-1]
	*subparts = (*subparts)[:len(*subparts)-1]

	b.mu.Lock()
	b.jobs++
	b.mu.Unlock()

	client := b.scannerClients[scanner]
	logger.Info("distribution: dispatching subpart", map[string]interface{}{
		"job_id": sp.ID, "scanner": scanner, "target": sp.Target, "ports": len(sp.Ports),
	})
	req := model.ExecScanRequest{
		Method:      b.inst.ScanMethod,
		Timing:      b.inst.ScanTiming,
		Target:      sp.Target,
		Ports:       sp.Ports,
		Coordinator: b.inst.CoordinatorAddr,
	}
	if err := client.ExecScan(ctx, req); err != nil {
		logger.Warn("distribution: exec_scan failed", map[string]interface{}{"scanner": scanner, "error": err.Error()})
		b.mu.Lock()
		b.jobs--
		b.mu.Unlock()
		return true
	}
	return true
}

func (b *Base) markDetected(scanner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detected[scanner] = true
}

func (b *Base) isDetected(scanner string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detected[scanner]
}

func (b *Base) detectedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.detected)
}

func (b *Base) jobCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs
}

func (b *Base) decJobs() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jobs > 0 {
		b.jobs--
	}
}
