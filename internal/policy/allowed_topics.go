// Package policy implements the AllowedTopicList value type (spec.md
// C6/4.6): a pure, immutable pair of glob rule lists deciding whether a
// topic is eligible for forwarding.
//
// Glob matching uses doublestar, the pack's one glob-pattern dependency
// (pulled in by redpanda-data-connect); see DESIGN.md.
package policy

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

// AllowedTopicList decides, given a topic, whether it is eligible for
// forwarding: allowed (by an empty or matching allow list) and not
// blocked (by the block list).
type AllowedTopicList struct {
	allow []string
	block []string
}

// New builds an AllowedTopicList from the given allow and block glob
// patterns. Patterns are matched against the topic name.
func New(allow, block []string) AllowedTopicList {
	return AllowedTopicList{allow: append([]string(nil), allow...), block: append([]string(nil), block...)}
}

// IsAllowed implements is_allowed: matches_allow(topic) && !matches_block(topic).
// Patterns match against the topic name alone, the way eprosima's
// WildcardTopicFilter treats name and type as independently filterable;
// this repository's configuration surface only exposes name globs.
func (l AllowedTopicList) IsAllowed(topic ddstypes.TopicId) bool {
	name := topic.Name
	return matchesAny(l.allow, name, true) && !matchesAny(l.block, name, false)
}

// Equal reports set-equality of the allow and block rule lists,
// irrespective of order.
func (l AllowedTopicList) Equal(other AllowedTopicList) bool {
	return sameSet(l.allow, other.allow) && sameSet(l.block, other.block)
}

// matchesAny reports whether name matches any pattern in patterns. When
// patterns is empty, emptyMatches is returned (true for the allow list's
// "everything allowed by default" rule, false for the block list's
// "nothing blocked by default" rule).
func matchesAny(patterns []string, name string, emptyMatches bool) bool {
	if len(patterns) == 0 {
		return emptyMatches
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}
