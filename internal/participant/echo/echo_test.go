package echo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

func testTopic() ddstypes.TopicId {
	return ddstypes.TopicId{Name: "chatter", Type: "std_msgs::msg::String", Kind: ddstypes.KindData}
}

func TestCreateReader_ReturnsSameInstanceForSameTopic(t *testing.T) {
	p := New("p0")
	r1, ok, err := p.CreateReader(context.Background(), testTopic())
	require.NoError(t, err)
	require.True(t, ok)
	r2, _, _ := p.CreateReader(context.Background(), testTopic())
	assert.Same(t, r1, r2)
}

func TestReader_PublishDeliversThroughCallbackAndTake(t *testing.T) {
	p := New("p0")
	reader, _, _ := p.CreateReader(context.Background(), testTopic())
	echoReader := reader.(*Reader)

	notified := false
	echoReader.SetDataAvailableCallback(func() { notified = true })

	require.NoError(t, echoReader.Publish(ddstypes.Sample{SourceGuid: echoReader.Guid()}))
	assert.True(t, notified)

	sample, ok, err := echoReader.Take()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, echoReader.Guid(), sample.SourceGuid)

	_, ok, _ = echoReader.Take()
	assert.False(t, ok)
}

func TestWriter_RecordsDeliveries(t *testing.T) {
	p := New("p0")
	writer, _, _ := p.CreateWriter(context.Background(), testTopic())
	echoWriter := writer.(*Writer)

	require.NoError(t, echoWriter.Write(context.Background(), ddstypes.Sample{}))
	require.NoError(t, echoWriter.Write(context.Background(), ddstypes.Sample{}))

	assert.Len(t, echoWriter.Deliveries(), 2)
}

func TestClose_RejectsFurtherPublishAndWrite(t *testing.T) {
	p := New("p0")
	reader, _, _ := p.CreateReader(context.Background(), testTopic())
	writer, _, _ := p.CreateWriter(context.Background(), testTopic())

	require.NoError(t, p.Close())

	assert.Error(t, reader.(*Reader).Publish(ddstypes.Sample{}))
	assert.Error(t, writer.(*Writer).Write(context.Background(), ddstypes.Sample{}))
}
