package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalpayloadpool "github.com/ddspipe/ddspipe/internal/payloadpool"
	internalparticipants "github.com/ddspipe/ddspipe/internal/participants"
	internalslotpool "github.com/ddspipe/ddspipe/internal/slotpool"
	"github.com/ddspipe/ddspipe/pkg/bridge"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

func dataTopic() ddstypes.TopicId {
	return ddstypes.TopicId{Name: "chatter", Type: "std_msgs::msg::String", Kind: ddstypes.KindData}
}

func newTestRig(t *testing.T) (*internalparticipants.Database, *internalpayloadpool.Pool, *internalslotpool.Pool) {
	pdb := internalparticipants.New()
	pool := internalpayloadpool.New(0)
	slots := internalslotpool.New(2, nil)
	slots.Enable()
	t.Cleanup(slots.Disable)
	return pdb, pool, slots
}

func TestDataBridge_PairEcho_ForwardsToAllOtherParticipants(t *testing.T) {
	topic := dataTopic()
	pdb, pool, slots := newTestRig(t)

	p0 := newFakeParticipant("p0", topic, true, true)
	p1 := newFakeParticipant("p1", topic, true, true)
	require.NoError(t, pdb.Add(p0))
	require.NoError(t, pdb.Add(p1))

	b := NewDataBridge(topic, pdb, pool, slots, nil)
	require.NoError(t, b.Enable())
	require.Equal(t, bridge.Enabled, b.State())

	payload, err := pool.Get(4)
	require.NoError(t, err)
	copy(payload.Bytes, []byte("ping"))

	p0.reader.push(ddstypes.Sample{Payload: payload, SourceGuid: p0.reader.Guid()})

	assert.Eventually(t, func() bool {
		return len(p1.writer.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// The source participant's own writer must never receive its own sample.
	assert.Empty(t, p0.writer.snapshot())

	assert.Eventually(t, func() bool {
		return pool.Stats().Outstanding == 0
	}, time.Second, 5*time.Millisecond, "payload leaked: %+v", pool.Stats())
}

func TestDataBridge_Disable_StopsForwardingAndJoinsInFlight(t *testing.T) {
	topic := dataTopic()
	pdb, pool, slots := newTestRig(t)

	p0 := newFakeParticipant("p0", topic, true, false)
	p1 := newFakeParticipant("p1", topic, false, true)
	require.NoError(t, pdb.Add(p0))
	require.NoError(t, pdb.Add(p1))

	b := NewDataBridge(topic, pdb, pool, slots, nil)
	require.NoError(t, b.Enable())

	payload, err := pool.Get(4)
	require.NoError(t, err)
	p0.reader.push(ddstypes.Sample{Payload: payload, SourceGuid: p0.reader.Guid()})

	assert.Eventually(t, func() bool {
		return len(p1.writer.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	b.Disable()
	assert.Equal(t, bridge.Disabled, b.State())

	second, err := pool.Get(4)
	require.NoError(t, err)
	p0.reader.push(ddstypes.Sample{Payload: second, SourceGuid: p0.reader.Guid()})

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, p1.writer.snapshot(), 1, "no sample should be forwarded once disabled")
}

func TestDataBridge_PeerWriteFailure_DoesNotAbortOtherPeers(t *testing.T) {
	topic := dataTopic()
	pdb, pool, slots := newTestRig(t)

	p0 := newFakeParticipant("p0", topic, true, false)
	p1 := newFakeParticipant("p1", topic, false, true)
	p2 := newFakeParticipant("p2", topic, false, true)
	require.NoError(t, pdb.Add(p0))
	require.NoError(t, pdb.Add(p1))
	require.NoError(t, pdb.Add(p2))

	p1.writer.failNext = true

	b := NewDataBridge(topic, pdb, pool, slots, nil)
	require.NoError(t, b.Enable())

	payload, err := pool.Get(4)
	require.NoError(t, err)
	p0.reader.push(ddstypes.Sample{Payload: payload, SourceGuid: p0.reader.Guid()})

	assert.Eventually(t, func() bool {
		return len(p2.writer.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, p1.writer.snapshot())
}

func TestDataBridge_Destroy_ClosesAllEndpoints(t *testing.T) {
	topic := dataTopic()
	pdb, pool, slots := newTestRig(t)

	p0 := newFakeParticipant("p0", topic, true, true)
	require.NoError(t, pdb.Add(p0))

	b := NewDataBridge(topic, pdb, pool, slots, nil)
	require.NoError(t, b.Enable())
	b.Destroy()

	assert.Equal(t, bridge.Destroyed, b.State())
	assert.True(t, p0.reader.closed)
	assert.True(t, p0.writer.closed)
}
