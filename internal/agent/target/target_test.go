package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProcNetTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000:0050 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 12345 1 0000000000000000 100 0 0 10 0
   1: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 12346 1 0000000000000000 100 0 0 10 0
   2: 00000000:1BB9 00000000:0000 06 00000000:00000000 00:00000000 00000000     0        0 12347 1 0000000000000000 100 0 0 10 0
`

func TestReadListeningPorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tcp")
	require.NoError(t, os.WriteFile(path, []byte(sampleProcNetTCP), 0o644))

	ports, err := readListeningPorts(path)
	require.NoError(t, err)

	// Port 0x0050 = 80, wildcard-bound and listening: included.
	// Port 0x1F90 = 8080, but bound to 127.0.0.1 (non-wildcard): excluded.
	// Port 0x1BB9 = 7097, wildcard but state 06 (not listening): excluded.
	assert.Equal(t, []int{80}, ports)
}

func TestReadListeningPorts_MissingFile(t *testing.T) {
	_, err := readListeningPorts("/nonexistent/proc/net/tcp")
	assert.Error(t, err)
}

func TestBuildBPFFilter(t *testing.T) {
	assert.Equal(t, "tcp", buildBPFFilter(nil))
	assert.Equal(t, "tcp and (host 10.0.2.1)", buildBPFFilter([]string{"10.0.2.1"}))
	assert.Equal(t, "tcp and (host 10.0.2.1 or host 10.0.2.2)", buildBPFFilter([]string{"10.0.2.1", "10.0.2.2"}))
}

func TestInSet(t *testing.T) {
	ips := []string{"10.0.2.1", "10.0.2.2"}
	assert.True(t, inSet(ips, "10.0.2.1"))
	assert.False(t, inSet(ips, "10.0.2.9"))
}
