package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

func topic(name, typ string) ddstypes.TopicId {
	return ddstypes.TopicId{Name: name, Type: typ, Kind: ddstypes.KindData}
}

func TestIsAllowed_EmptyAllowListAllowsEverythingNotBlocked(t *testing.T) {
	l := New(nil, []string{"secret/*"})

	assert.True(t, l.IsAllowed(topic("rt/chatter", "std_msgs::msg::String")))
	assert.False(t, l.IsAllowed(topic("secret/keys", "std_msgs::msg::String")))
}

func TestIsAllowed_NonEmptyAllowListRestricts(t *testing.T) {
	l := New([]string{"rt/**"}, nil)

	assert.True(t, l.IsAllowed(topic("rt/chatter", "std_msgs::msg::String")))
	assert.False(t, l.IsAllowed(topic("other/topic", "std_msgs::msg::String")))
}

func TestIsAllowed_BlockTakesPrecedenceOverAllow(t *testing.T) {
	l := New([]string{"rt/**"}, []string{"rt/secret"})

	assert.True(t, l.IsAllowed(topic("rt/chatter", "T")))
	assert.False(t, l.IsAllowed(topic("rt/secret", "T")))
}

func TestEqual_IsSetEqualityIrrespectiveOfOrder(t *testing.T) {
	a := New([]string{"a/*", "b/*"}, []string{"c/*"})
	b := New([]string{"b/*", "a/*"}, []string{"c/*"})
	c := New([]string{"a/*"}, []string{"c/*"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
