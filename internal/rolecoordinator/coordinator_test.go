package rolecoordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterSlave_SlaveObservesHeartbeatFromMaster(t *testing.T) {
	slave, err := NewSlave("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	slaveAddr := slave.conn.LocalAddr().String()

	master, err := NewMaster("127.0.0.1:0", slaveAddr, 10*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { master.Close() })

	assert.True(t, master.IsMaster())
	assert.False(t, slave.IsMaster())

	assert.False(t, slave.WaitForFailover(time.Second), "slave should observe a heartbeat before timing out")
}

func TestSlave_PromotedToMasterWhenHeartbeatsStop(t *testing.T) {
	slave, err := NewSlave("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	promoted := slave.WaitForFailover(50 * time.Millisecond)

	assert.True(t, promoted)
	assert.True(t, slave.IsMaster())
}

func TestObserveHeartbeat_UnblocksWaitForFailoverImmediately(t *testing.T) {
	slave, err := NewSlave("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	slave.ObserveHeartbeat()

	assert.False(t, slave.WaitForFailover(time.Second))
}
