package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"distscan/internal/model"
)

func TestEventQueue_FIFOOrder(t *testing.T) {
	q := newEventQueue()
	assert.Nil(t, q.drain())

	q.push(model.NewScannerEvent("10.0.2.1", "10.0.1.1"))
	q.push(model.NewFirewallEvent(model.Alert{IPSrc: "10.0.2.2"}))
	q.push(model.NewScannerEvent("10.0.2.3", "10.0.1.1"))

	events := q.drain()
	assert.Len(t, events, 3)
	assert.Equal(t, "10.0.2.1", events[0].ScannerDone.Scanner)
	assert.Equal(t, "10.0.2.2", events[1].FirewallHit.Alert.IPSrc)
	assert.Equal(t, "10.0.2.3", events[2].ScannerDone.Scanner)

	assert.Nil(t, q.drain()) // queue empties on drain
}
