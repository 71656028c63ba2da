package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"hosts": {
		"scanners": [{"ip": "10.0.0.1", "port": 8000}, {"ip": "10.0.0.2-3", "port": 8000}],
		"firewalls": [{"ip": "10.0.2.1", "port": 8001}],
		"targets": [{"ip": "10.0.1.1", "port": 8002}]
	},
	"experiments": {
		"distributionMethods": ["naive", "parallel"],
		"scanMethods": ["-sS", "-sT"],
		"scanTimings": ["normal", "sneaky"],
		"scannerNumberValues": [1, 2],
		"targetNumberValues": [1],
		"count": 2,
		"ports": [22, 80, 443],
		"firewall_args": {"patterns": ["nmap"], "logfile": "/var/log/snort/alert", "timing": 1.0}
	}
}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Hosts.Scanners, 3) // range expanded to 3 scanners total
	assert.Equal(t, 2, cfg.Experiments.Count)
	assert.Equal(t, []int{22, 80, 443}, cfg.Experiments.Ports)
	assert.Equal(t, "/var/log/snort/alert", cfg.Experiments.FirewallArgs.LogFile)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	assert.Error(t, err)
}
