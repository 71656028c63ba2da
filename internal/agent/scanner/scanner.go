// Package scanner implements the scanner agent from spec.md §4.3: it
// spawns a probe process, parses its packet trace, and reports port
// states and captured traffic back to the coordinator.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"distscan/internal/model"
	"distscan/internal/pkg/logger"
	"distscan/internal/rpc"
)

// Config configures how the agent invokes its probe binary and how it
// identifies itself to the coordinator.
type Config struct {
	// OwnAddr is this scanner's own IP address, reported as the scanner
	// identity in completion events; the coordinator keys its scanners
	// (and portstate.scanners entries) by that same IP.
	OwnAddr string
	// ProbeCommandTemplate is shell-expanded with <type>, <timing>, <ip>
	// and <ports> placeholders, per SPEC_FULL.md §E.2. Matches the
	// original's nmap_cmd template generalized to any probe binary.
	ProbeCommandTemplate string
}

func DefaultConfig() Config {
	return Config{
		ProbeCommandTemplate: "nmap <type> <ip> <ports> -T <timing> -d2 -Pn -n --packet-trace -oX -",
	}
}

// Agent is the scanner's in-process state, mutated only while a probe is
// running. A single Agent instance serves exactly one scan at a time,
// matching spec.md's lifecycle: state is reset at exec_scan and read via
// scan_state/stop_scan.
type Agent struct {
	cfg Config

	mu         sync.Mutex
	target     string
	remaining  int
	portState  map[int]model.ScannerPortStateEntry
	traffic    map[string]map[int][]model.Packet // traffic[target][port]
	timestamps model.Timestamps
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	alive      bool
}

func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// ExecScan starts the probe asynchronously and returns immediately, per
// spec.md §4.3. The probe's output is read in a background goroutine;
// on exit, if req.Coordinator is set, a scanner-completion event is
// delivered via add_event.
func (a *Agent) ExecScan(ctx context.Context, req *model.ExecScanRequest) (*struct{}, error) {
	a.mu.Lock()
	if a.alive {
		a.mu.Unlock()
		return nil, fmt.Errorf("scanner: a scan is already running")
	}

	a.target = req.Target
	a.remaining = len(req.Ports)
	a.portState = make(map[int]model.ScannerPortStateEntry)
	a.traffic = make(map[string]map[int][]model.Packet)
	a.timestamps = model.Timestamps{Begin: time.Now().Unix()}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.alive = true

	cmdLine := buildCommand(a.cfg.ProbeCommandTemplate, req)
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", cmdLine)
	a.cmd = cmd
	a.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("scanner: attach stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("scanner: start probe: %w", err)
	}

	logger.Info("scanner: probe started", map[string]interface{}{
		"target": req.Target, "method": req.Method, "timing": req.Timing, "command": cmdLine,
	})

	go a.readLines(stdout, req.Target, req.Method)
	go a.waitProbe(cmd, req.Target, req.Coordinator)

	return nil, nil
}

func buildCommand(tpl string, req *model.ExecScanRequest) string {
	ports := make([]string, len(req.Ports))
	for i, p := range req.Ports {
		ports[i] = strconv.Itoa(p)
	}
	portArg := "-F"
	if len(ports) > 0 {
		portArg = "-p " + strings.Join(ports, ",")
	}

	cmd := tpl
	cmd = strings.ReplaceAll(cmd, "<type>", req.Method)
	cmd = strings.ReplaceAll(cmd, "<timing>", req.Timing)
	cmd = strings.ReplaceAll(cmd, "<ip>", req.Target)
	cmd = strings.ReplaceAll(cmd, "<ports>", portArg)
	return cmd
}

// readLines reads the probe's stdout line by line, matching the three
// regex families (plus connect-style send) from spec.md §4.3. Parse
// failures on a line are dropped silently (spec.md §7 category 5).
func (a *Agent) readLines(stdout io.Reader, target, method string) {
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		a.handleLine(line, target, method)
	}
}

func (a *Agent) handleLine(line, target, method string) {
	now := time.Now()

	if g, ok := namedGroups(sentRe, line); ok {
		port, _ := strconv.Atoi(g["port_dst"])
		seq, hasSeq := parseSeq(g["seq"])
		a.appendTraffic(g["ip_dst"], port, model.Packet{Flags: g["flags"], Seq: seq, HasSeq: hasSeq})
		return
	}
	if g, ok := namedGroups(rcvdRe, line); ok {
		port, _ := strconv.Atoi(g["port_src"])
		seq, hasSeq := parseSeq(g["seq"])
		a.appendTraffic(g["ip_src"], port, model.Packet{Flags: g["flags"], Seq: seq, HasSeq: hasSeq})
		return
	}
	if g, ok := namedGroups(connRe, line); ok {
		port, _ := strconv.Atoi(g["port_dst"])
		a.appendTraffic(g["ip_dst"], port, model.Packet{Flags: "S", HasSeq: false})
		return
	}
	if g, ok := namedGroups(portStateRe, line); ok {
		port, _ := strconv.Atoi(g["port"])
		state := g["state"]
		if idx := strings.Index(state, "|"); idx != -1 {
			state = state[:idx]
		}
		a.mu.Lock()
		a.portState[port] = model.ScannerPortStateEntry{State: model.PortState(state), Discovered: now.Unix()}
		a.remaining--
		a.mu.Unlock()
		logger.Debug("scanner: port classified", map[string]interface{}{
			"target": target, "port": port, "state": state, "method": method,
		})
	}
}

func parseSeq(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (a *Agent) appendTraffic(target string, port int, pkt model.Packet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.traffic[target] == nil {
		a.traffic[target] = make(map[int][]model.Packet)
	}
	a.traffic[target][port] = append(a.traffic[target][port], pkt)
}

func (a *Agent) waitProbe(cmd *exec.Cmd, target string, coord model.CoordinatorAddr) {
	err := cmd.Wait()

	a.mu.Lock()
	a.timestamps.End = time.Now().Unix()
	a.alive = false
	a.mu.Unlock()

	if err != nil {
		logger.Warn("scanner: probe exited with error", map[string]interface{}{"target": target, "error": err.Error()})
	} else {
		logger.Info("scanner: probe finished", map[string]interface{}{"target": target})
	}

	if coord.Empty() {
		return
	}
	client := rpc.NewCoordinatorClient(coord.Addr())
	event := model.AddEventRequest{Scanner: &model.ScannerCompletion{Scanner: a.cfg.OwnAddr, Target: target}}
	ctx, cancel := context.WithTimeout(context.Background(), rpc.DefaultTimeout)
	defer cancel()
	if err := client.AddEvent(ctx, event); err != nil {
		logger.Warn("scanner: failed to notify coordinator of completion", map[string]interface{}{"error": err.Error()})
	}
}

// StopScan kills the probe process, per spec.md §4.3.
func (a *Agent) StopScan(ctx context.Context, _ *struct{}) (*struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.alive = false
	return nil, nil
}

// PollScan reports whether the probe is still alive.
func (a *Agent) PollScan(ctx context.Context, _ *struct{}) (*model.PollScanResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &model.PollScanResponse{Alive: a.alive}, nil
}

// ScanState returns the accumulated port-state and traffic maps.
func (a *Agent) ScanState(ctx context.Context, _ *struct{}) (*model.ScanStateResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	portState := make(map[int]model.ScannerPortStateEntry, len(a.portState))
	for k, v := range a.portState {
		portState[k] = v
	}
	traffic := make(map[string]map[int][]model.Packet, len(a.traffic))
	for target, ports := range a.traffic {
		traffic[target] = make(map[int][]model.Packet, len(ports))
		for port, pkts := range ports {
			cp := make([]model.Packet, len(pkts))
			copy(cp, pkts)
			traffic[target][port] = cp
		}
	}

	return &model.ScanStateResponse{
		PortState:  portState,
		Traffic:    traffic,
		Timestamps: a.timestamps,
	}, nil
}
