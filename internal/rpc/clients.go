package rpc

import (
	"context"

	"distscan/internal/model"
)

// ScannerClient calls the four scanner RPCs from spec.md §6.
type ScannerClient struct{ c *Client }

func NewScannerClient(addr string) *ScannerClient { return &ScannerClient{c: NewClient(addr)} }

func (s *ScannerClient) ExecScan(ctx context.Context, req model.ExecScanRequest) error {
	return s.c.Call(ctx, "exec_scan", req, nil)
}

func (s *ScannerClient) StopScan(ctx context.Context) error {
	return s.c.Call(ctx, "stop_scan", nil, nil)
}

func (s *ScannerClient) PollScan(ctx context.Context) (model.PollScanResponse, error) {
	var resp model.PollScanResponse
	err := s.c.Call(ctx, "poll_scan", nil, &resp)
	return resp, err
}

func (s *ScannerClient) ScanState(ctx context.Context) (model.ScanStateResponse, error) {
	var resp model.ScanStateResponse
	err := s.c.Call(ctx, "scan_state", nil, &resp)
	return resp, err
}

// FirewallClient calls the three firewall RPCs from spec.md §6.
type FirewallClient struct{ c *Client }

func NewFirewallClient(addr string) *FirewallClient { return &FirewallClient{c: NewClient(addr)} }

func (f *FirewallClient) StartSnitch(ctx context.Context, req model.StartSnitchRequest) error {
	return f.c.Call(ctx, "start_snitch", req, nil)
}

func (f *FirewallClient) StopSnitch(ctx context.Context) error {
	return f.c.Call(ctx, "stop_snitch", nil, nil)
}

func (f *FirewallClient) SnitchState(ctx context.Context) (model.SnitchStateResponse, error) {
	var resp model.SnitchStateResponse
	err := f.c.Call(ctx, "snitch_state", nil, &resp)
	return resp, err
}

// TargetClient calls the four target RPCs from spec.md §6.
type TargetClient struct{ c *Client }

func NewTargetClient(addr string) *TargetClient { return &TargetClient{c: NewClient(addr)} }

func (t *TargetClient) StartMonitor(ctx context.Context, scannerIPs []string) error {
	return t.c.Call(ctx, "start_monitor", model.StartMonitorRequest{ScannerIPs: scannerIPs}, nil)
}

func (t *TargetClient) StopMonitor(ctx context.Context) error {
	return t.c.Call(ctx, "stop_monitor", nil, nil)
}

func (t *TargetClient) GetTraffic(ctx context.Context) (model.GetTrafficResponse, error) {
	var resp model.GetTrafficResponse
	err := t.c.Call(ctx, "get_traffic", nil, &resp)
	return resp, err
}

func (t *TargetClient) GetOpenPorts(ctx context.Context) (model.GetOpenPortsResponse, error) {
	var resp model.GetOpenPortsResponse
	err := t.c.Call(ctx, "get_open_ports", nil, &resp)
	return resp, err
}

// CoordinatorClient delivers the reverse add_event callback from an agent
// to the coordinator. Agents build one of these per event and drop it
// immediately after (spec.md §9 "Cyclic callback").
type CoordinatorClient struct{ c *Client }

func NewCoordinatorClient(addr string) *CoordinatorClient {
	return &CoordinatorClient{c: NewClient(addr)}
}

func (cc *CoordinatorClient) AddEvent(ctx context.Context, req model.AddEventRequest) error {
	return cc.c.Call(ctx, "add_event", req, nil)
}
