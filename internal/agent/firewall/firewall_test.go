package firewall

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distscan/internal/model"
)

func TestAnalyse_CaseInsensitiveSubstring(t *testing.T) {
	a := New(Config{OwnAddr: "10.0.2.9"})
	a.patterns = []string{"NMAP", "masscan"}

	rec := alertRecord{AlertText: "possible nmap scan", DateStr: "07/29-14:23:01", IPSrc: "10.0.2.1", IPDst: "10.0.1.1"}
	a.analyse(rec, model.CoordinatorAddr{})

	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, state.Alerts, 1)
	assert.Equal(t, []string{"NMAP"}, state.Alerts[0].Patterns)
	assert.Equal(t, "10.0.2.9", state.Alerts[0].DetectedBy)
	assert.Equal(t, "10.0.2.1", state.Alerts[0].IPSrc)
	assert.Equal(t, "10.0.1.1", state.Alerts[0].IPDst)
}

func TestAnalyse_NoMatch(t *testing.T) {
	a := New(Config{OwnAddr: "10.0.2.9"})
	a.patterns = []string{"nmap"}

	a.analyse(alertRecord{AlertText: "just a regular alert", IPSrc: "10.0.2.1", IPDst: "10.0.1.1"}, model.CoordinatorAddr{})

	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, state.Alerts)
}

func TestAnalyse_MultiplePatternHits(t *testing.T) {
	a := New(Config{OwnAddr: "10.0.2.9"})
	a.patterns = []string{"nmap", "scan"}

	a.analyse(alertRecord{AlertText: "nmap scan detected", IPSrc: "10.0.2.1", IPDst: "10.0.1.1"}, model.CoordinatorAddr{})

	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, state.Alerts, 1)
	assert.ElementsMatch(t, []string{"nmap", "scan"}, state.Alerts[0].Patterns)
}

func TestAnalyse_DateSynthesizesCurrentYear(t *testing.T) {
	a := New(Config{OwnAddr: "10.0.2.9"})
	a.patterns = []string{"nmap"}

	a.analyse(alertRecord{AlertText: "nmap scan", DateStr: "07/29-14:23:01", IPSrc: "10.0.2.1", IPDst: "10.0.1.1"}, model.CoordinatorAddr{})

	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, state.Alerts, 1)

	got := time.Unix(state.Alerts[0].Date, 0)
	assert.Equal(t, time.Now().Year(), got.Year())
	assert.Equal(t, time.July, got.Month())
	assert.Equal(t, 29, got.Day())
}

func TestStartSnitch_TailsAppendedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alert.log")
	preExisting := "[**] [1:2001999:1] pre-existing nmap alert [**]\n" +
		"[Classification: Attempted Information Leak] [Priority: 2]\n" +
		"07/29-14:00:00.000000 10.0.2.1 -> 10.0.1.1\n"
	require.NoError(t, os.WriteFile(path, []byte(preExisting), 0o644))

	a := New(Config{OwnAddr: "10.0.2.9", PollInterval: 20 * time.Millisecond})

	_, err := a.StartSnitch(context.Background(), &model.StartSnitchRequest{
		Patterns: []string{"nmap"},
		LogFile:  path,
	})
	require.NoError(t, err)
	defer a.StopSnitch(context.Background(), nil)

	// Pre-existing content must not be picked up (seek-to-end semantics).
	time.Sleep(50 * time.Millisecond)
	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, state.Alerts)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	fresh := "[**] [1:2002000:1] fresh nmap scan detected [**]\n" +
		"[Classification: Attempted Information Leak] [Priority: 2]\n" +
		"07/29-14:23:05.000000 10.0.2.1 -> 10.0.1.1\n"
	_, err = f.WriteString(fresh)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		state, err := a.SnitchState(context.Background(), nil)
		return err == nil && len(state.Alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	state, err = a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.2.1", state.Alerts[0].IPSrc)
	assert.Equal(t, "10.0.1.1", state.Alerts[0].IPDst)
}

func TestStartSnitch_RecordSplitAcrossPolls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alert.log")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))

	a := New(Config{OwnAddr: "10.0.2.9", PollInterval: 20 * time.Millisecond})
	_, err := a.StartSnitch(context.Background(), &model.StartSnitchRequest{
		Patterns: []string{"nmap"},
		LogFile:  path,
	})
	require.NoError(t, err)
	defer a.StopSnitch(context.Background(), nil)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("[**] [1:2001999:1] nmap scan detected [**]\n[Classification: test] [Priority: 2]\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Give the first poll a chance to see the incomplete record and hold it.
	time.Sleep(50 * time.Millisecond)
	state, err := a.SnitchState(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, state.Alerts)

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("07/29-14:23:01.000000 10.0.2.1 -> 10.0.1.1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		state, err := a.SnitchState(context.Background(), nil)
		return err == nil && len(state.Alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
