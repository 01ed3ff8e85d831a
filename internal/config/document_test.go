package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	configpkg "github.com/ddspipe/ddspipe/pkg/config"
)

func TestLoad_AcceptsSupportedVersion(t *testing.T) {
	doc, err := Load([]byte(`
version: v4.0
allowlist: ["chatter/*"]
reload_time_ms: 1000
`))
	require.NoError(t, err)
	assert.Equal(t, "v4.0", doc.Version)
	assert.Equal(t, []string{"chatter/*"}, doc.AllowTopics)
	assert.Equal(t, 1000, doc.ReloadTimeMs)
}

func TestLoad_RejectsOlderVersion(t *testing.T) {
	_, err := Load([]byte(`version: v3.2`))
	require.Error(t, err)
	var dderr *ddserrors.Error
	require.ErrorAs(t, err, &dderr)
	assert.Equal(t, ddserrors.KindConfiguration, dderr.Kind())
}

func TestLoad_RejectsMissingVersion(t *testing.T) {
	_, err := Load([]byte(`allowlist: ["chatter/*"]`))
	require.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	_, err := Load([]byte(`version: [`))
	require.Error(t, err)
}

func TestSaveThenLoad_RoundTripsEqual(t *testing.T) {
	original := configpkg.Document{
		Version:     "v4.0",
		AllowTopics: []string{"chatter/*"},
		BlockTopics: []string{"internal/*"},
		Participants: []configpkg.ParticipantSpec{
			{Name: "p0", Kind: "echo"},
		},
		ReloadTimeMs: 500,
		TimeoutMs:    2000,
	}

	raw, err := Save(original)
	require.NoError(t, err)

	roundTripped, err := Load(raw)
	require.NoError(t, err)

	assert.True(t, Equal(original, roundTripped))
}

func TestEqual_DetectsDifference(t *testing.T) {
	a := configpkg.Document{Version: "v4.0", AllowTopics: []string{"a"}}
	b := configpkg.Document{Version: "v4.0", AllowTopics: []string{"b"}}
	assert.False(t, Equal(a, b))
}
