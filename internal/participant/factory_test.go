package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/internal/participant/echo"
)

func TestCreate_EchoKindNeedsNoOptions(t *testing.T) {
	f := NewFactory(nil)
	p, err := f.Create("p0", echo.Kind, nil)
	require.NoError(t, err)
	assert.Equal(t, echo.Kind, p.Kind())
}

func TestCreate_PubsubKindRequiresURLOption(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Create("p0", "pubsub", nil)
	require.Error(t, err)

	var dderr *ddserrors.Error
	require.ErrorAs(t, err, &dderr)
	assert.Equal(t, ddserrors.KindConfiguration, dderr.Kind())
}

func TestCreate_WireKindRequiresTargetOption(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Create("p0", "wire", nil)
	require.Error(t, err)

	var dderr *ddserrors.Error
	require.ErrorAs(t, err, &dderr)
	assert.Equal(t, ddserrors.KindConfiguration, dderr.Kind())
}

func TestCreate_UnknownKindReturnsConfigurationError(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Create("p0", "carrier-pigeon", nil)
	require.Error(t, err)

	var dderr *ddserrors.Error
	require.ErrorAs(t, err, &dderr)
	assert.Equal(t, ddserrors.KindConfiguration, dderr.Kind())
}
