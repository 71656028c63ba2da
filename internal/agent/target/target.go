// Package target implements the target agent from spec.md §4.5: it
// passively captures TCP traffic from a set of scanner hosts and
// reports both the captured packets and the locally listening ports.
package target

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"distscan/internal/model"
	"distscan/internal/pkg/logger"
)

// Config configures the capture interface.
type Config struct {
	Interface string
	SnapLen   int32
}

func DefaultConfig() Config {
	return Config{Interface: "eth0", SnapLen: 65536}
}

// Agent is the target's in-process state. A single Agent serves one
// monitoring session at a time, reset on each start_monitor.
type Agent struct {
	cfg Config

	mu      sync.Mutex
	traffic map[string]map[int][]model.Packet // traffic[scanner][port]
	cancel  context.CancelFunc
	active  bool
}

func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// StartMonitor begins capturing packets to/from req.ScannerIPs on the
// configured interface, classifying received traffic by scanner per
// spec.md §4.5. Runs until StopMonitor is called.
func (a *Agent) StartMonitor(ctx context.Context, req *model.StartMonitorRequest) (*struct{}, error) {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return nil, fmt.Errorf("target: a monitor is already running")
	}
	a.traffic = make(map[string]map[int][]model.Packet)
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.active = true
	a.mu.Unlock()

	handle, err := pcap.OpenLive(a.cfg.Interface, a.cfg.SnapLen, true, pcap.BlockForever)
	if err != nil {
		a.mu.Lock()
		a.active = false
		a.mu.Unlock()
		return nil, fmt.Errorf("target: open interface %s: %w", a.cfg.Interface, err)
	}

	filter := buildBPFFilter(req.ScannerIPs)
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			logger.Warn("target: failed to set BPF filter, capturing all TCP traffic", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info("target: monitor started", map[string]interface{}{"interface": a.cfg.Interface, "scanners": req.ScannerIPs})

	go a.capture(runCtx, handle, req.ScannerIPs)

	return nil, nil
}

func buildBPFFilter(scannerIPs []string) string {
	if len(scannerIPs) == 0 {
		return "tcp"
	}
	hosts := make([]string, len(scannerIPs))
	for i, ip := range scannerIPs {
		hosts[i] = "host " + ip
	}
	return "tcp and (" + strings.Join(hosts, " or ") + ")"
}

func inSet(ips []string, ip string) bool {
	for _, v := range ips {
		if v == ip {
			return true
		}
	}
	return false
}

// capture reads packets off handle until ctx is cancelled by
// StopMonitor, classifying each TCP packet whose source is a known
// scanner as received traffic. Packets sent by the target (the other
// direction) are ignored, mirroring the original monitor's scapy loop.
func (a *Agent) capture(ctx context.Context, handle *pcap.Handle, scannerIPs []string) {
	defer handle.Close()

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := src.Packets()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			a.handlePacket(pkt, scannerIPs)
		}
	}
}

func (a *Agent) handlePacket(pkt gopacket.Packet, scannerIPs []string) {
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if ipLayer == nil || tcpLayer == nil {
		return
	}
	ip, _ := ipLayer.(*layers.IPv4)
	tcp, _ := tcpLayer.(*layers.TCP)
	if ip == nil || tcp == nil {
		return
	}

	ipSrc := ip.SrcIP.String()
	if !inSet(scannerIPs, ipSrc) {
		// Sent packet or traffic from an unrelated host; not monitored.
		return
	}

	targetPort := int(tcp.DstPort)
	flags := tcpFlagString(tcp)

	a.mu.Lock()
	if a.traffic[ipSrc] == nil {
		a.traffic[ipSrc] = make(map[int][]model.Packet)
	}
	a.traffic[ipSrc][targetPort] = append(a.traffic[ipSrc][targetPort], model.Packet{
		Flags: flags, Seq: int(tcp.Seq), HasSeq: true,
	})
	a.mu.Unlock()

	logger.Debug("target: received packet", map[string]interface{}{
		"scanner": ipSrc, "port": targetPort, "flags": flags, "seq": tcp.Seq,
	})
}

// tcpFlagString renders the set TCP flags in the same letter order the
// original's packet traces used (SYN/ACK/FIN/RST/PSH/URG).
func tcpFlagString(tcp *layers.TCP) string {
	var b strings.Builder
	if tcp.SYN {
		b.WriteString("S")
	}
	if tcp.ACK {
		b.WriteString("A")
	}
	if tcp.FIN {
		b.WriteString("F")
	}
	if tcp.RST {
		b.WriteString("R")
	}
	if tcp.PSH {
		b.WriteString("P")
	}
	if tcp.URG {
		b.WriteString("U")
	}
	return b.String()
}

// StopMonitor halts the capture loop.
func (a *Agent) StopMonitor(ctx context.Context, _ *struct{}) (*struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.active = false
	return nil, nil
}

// GetTraffic returns the captured traffic, keyed by scanner then port.
func (a *Agent) GetTraffic(ctx context.Context, _ *struct{}) (*model.GetTrafficResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]map[int][]model.Packet, len(a.traffic))
	for scanner, ports := range a.traffic {
		out[scanner] = make(map[int][]model.Packet, len(ports))
		for port, pkts := range ports {
			cp := make([]model.Packet, len(pkts))
			copy(cp, pkts)
			out[scanner][port] = cp
		}
	}
	return &model.GetTrafficResponse{Traffic: out}, nil
}

// GetOpenPorts reads /proc/net/tcp and returns every port in the
// listening state (0A), keeping only wildcard-bound (0.0.0.0) entries
// the same way the original did — per spec.md §4.5 this is a best-effort,
// Linux-only probe; failures are reported as an error so the coordinator
// can log and continue per spec.md §7 category 3.
func (a *Agent) GetOpenPorts(ctx context.Context, _ *struct{}) (*model.GetOpenPortsResponse, error) {
	ports, err := readListeningPorts("/proc/net/tcp")
	if err != nil {
		return nil, fmt.Errorf("target: read open ports: %w", err)
	}
	return &model.GetOpenPortsResponse{Ports: ports}, nil
}

const tcpListenState = "0A"

// readListeningPorts parses the /proc/net/tcp format:
//
//	sl  local_address rem_address   st ...
//	 0: 00000000:0050 00000000:0000 0A ...
//
// local_address is "hexIP:hexPort". Only entries listening on the
// wildcard address (0.0.0.0) are reported, matching the original.
func readListeningPorts(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ports []int
	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[3] != tcpListenState {
			continue
		}
		hostPort := strings.SplitN(fields[1], ":", 2)
		if len(hostPort) != 2 {
			continue
		}
		if hostPort[0] != "00000000" {
			continue
		}
		port, err := strconv.ParseInt(hostPort[1], 16, 32)
		if err != nil {
			continue
		}
		ports = append(ports, int(port))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ports, nil
}
