package wire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

func testTopic() ddstypes.TopicId {
	return ddstypes.TopicId{Name: "chatter", Type: "std_msgs::msg::String", Kind: ddstypes.KindData}
}

func TestDial_DoesNotBlockOnUnreachableTarget(t *testing.T) {
	// grpc.NewClient is lazy: it never dials until the first RPC, so an
	// unreachable target still succeeds here.
	p, err := Dial("p0", "127.0.0.1:0")
	require.NoError(t, err)
	defer p.Close()
}

func TestWriter_WriteReturnsUnsupported(t *testing.T) {
	p, err := Dial("p0", "127.0.0.1:0")
	require.NoError(t, err)
	defer p.Close()

	writer, _, err := p.CreateWriter(context.Background(), testTopic())
	require.NoError(t, err)

	writeErr := writer.Write(context.Background(), ddstypes.Sample{})
	require.Error(t, writeErr)

	var dderr *ddserrors.Error
	require.ErrorAs(t, writeErr, &dderr)
	assert.Equal(t, ddserrors.KindUnsupported, dderr.Kind())
}

func TestReader_NeverHasData(t *testing.T) {
	p, err := Dial("p0", "127.0.0.1:0")
	require.NoError(t, err)
	defer p.Close()

	reader, _, err := p.CreateReader(context.Background(), testTopic())
	require.NoError(t, err)

	assert.False(t, reader.HasData())
	_, ok, _ := reader.Take()
	assert.False(t, ok)
}
