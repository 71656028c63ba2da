package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distscan/internal/model"
)

func TestBuildCommand_Substitution(t *testing.T) {
	req := &model.ExecScanRequest{Method: "-sS", Timing: "normal", Target: "10.0.1.1", Ports: []int{22, 80}}
	cmd := buildCommand("nmap <type> <ip> <ports> -T <timing>", req)
	assert.Equal(t, "nmap -sS 10.0.1.1 -p 22,80 -T normal", cmd)
}

func TestBuildCommand_NoPortsUsesFastScan(t *testing.T) {
	req := &model.ExecScanRequest{Method: "-sS", Timing: "normal", Target: "10.0.1.1"}
	cmd := buildCommand("nmap <type> <ip> <ports>", req)
	assert.Equal(t, "nmap -sS 10.0.1.1 -F", cmd)
}

func TestHandleLine_PortStateDecrement(t *testing.T) {
	a := New(DefaultConfig())
	a.remaining = 2
	a.portState = make(map[int]model.ScannerPortStateEntry)
	a.traffic = make(map[string]map[int][]model.Packet)

	a.handleLine("Discovered open port 22/tcp on 10.0.1.1", "10.0.1.1", "-sS")

	assert.Equal(t, 1, a.remaining)
	assert.Equal(t, model.PortOpen, a.portState[22].State)
}

func TestHandleLine_PipedStateTruncated(t *testing.T) {
	a := New(DefaultConfig())
	a.portState = make(map[int]model.ScannerPortStateEntry)
	a.traffic = make(map[string]map[int][]model.Packet)

	a.handleLine("Discovered open|filtered port 80/tcp on 10.0.1.1", "10.0.1.1", "-sS")

	assert.Equal(t, model.PortState("open"), a.portState[80].State)
}

func TestHandleLine_SentTraffic(t *testing.T) {
	a := New(DefaultConfig())
	a.portState = make(map[int]model.ScannerPortStateEntry)
	a.traffic = make(map[string]map[int][]model.Packet)

	a.handleLine("SENT (0.01s) TCP 10.0.2.1:54321 > 10.0.1.1:22 S seq=1000 win=1024", "10.0.1.1", "-sS")

	require.Len(t, a.traffic["10.0.1.1"][22], 1)
	assert.Equal(t, "S", a.traffic["10.0.1.1"][22][0].Flags)
	assert.Equal(t, 1000, a.traffic["10.0.1.1"][22][0].Seq)
}

func TestScanState_ReturnsSnapshot(t *testing.T) {
	a := New(DefaultConfig())
	a.portState = map[int]model.ScannerPortStateEntry{22: {State: model.PortOpen}}
	a.traffic = map[string]map[int][]model.Packet{"10.0.1.1": {22: {{Flags: "S", Seq: 1, HasSeq: true}}}}

	resp, err := a.ScanState(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.PortOpen, resp.PortState[22].State)
	assert.Len(t, resp.Traffic["10.0.1.1"][22], 1)

	// Mutating the agent's internal state afterward must not affect the
	// already-returned snapshot.
	a.traffic["10.0.1.1"][22] = append(a.traffic["10.0.1.1"][22], model.Packet{Flags: "R"})
	assert.Len(t, resp.Traffic["10.0.1.1"][22], 1)
}

func TestPollScan_ReflectsAliveFlag(t *testing.T) {
	a := New(DefaultConfig())
	resp, err := a.PollScan(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, resp.Alive)

	a.alive = true
	resp, err = a.PollScan(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, resp.Alive)
}
