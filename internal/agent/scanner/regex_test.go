package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentRe(t *testing.T) {
	line := "SENT (0.1234s) TCP 10.0.2.1:54321 > 10.0.1.1:22 S seq=123456789 win=1024"
	g, ok := namedGroups(sentRe, line)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.1", g["ip_dst"])
	assert.Equal(t, "22", g["port_dst"])
	assert.Equal(t, "S", g["flags"])
	assert.Equal(t, "123456789", g["seq"])
}

func TestRcvdRe(t *testing.T) {
	line := "RCVD (0.2345s) TCP 10.0.1.1:22 > 10.0.2.1:54321 SA seq=987654321 win=4096"
	g, ok := namedGroups(rcvdRe, line)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.1", g["ip_src"])
	assert.Equal(t, "22", g["port_src"])
	assert.Equal(t, "SA", g["flags"])
	assert.Equal(t, "987654321", g["seq"])
}

func TestConnRe(t *testing.T) {
	line := "CONN (0.0100s) 10.0.2.1:51234 > 10.0.1.1:443"
	g, ok := namedGroups(connRe, line)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.1", g["ip_dst"])
	assert.Equal(t, "443", g["port_dst"])
}

func TestPortStateRe(t *testing.T) {
	line := "Discovered open port 22/tcp on 10.0.1.1"
	g, ok := namedGroups(portStateRe, line)
	require.True(t, ok)
	assert.Equal(t, "open", g["state"])
	assert.Equal(t, "22", g["port"])
	assert.Equal(t, "10.0.1.1", g["ip"])
}

func TestPortStateRe_WithPipe(t *testing.T) {
	line := "Discovered open|filtered port 80/tcp on 10.0.1.1"
	g, ok := namedGroups(portStateRe, line)
	require.True(t, ok)
	assert.Equal(t, "open|filtered", g["state"])
}

func TestNamedGroups_NoMatch(t *testing.T) {
	_, ok := namedGroups(sentRe, "not a relevant line")
	assert.False(t, ok)
}
