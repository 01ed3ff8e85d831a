package ddstypes

import (
	"fmt"

	"github.com/google/uuid"
)

// ParticipantId is an opaque string unique within a process. It is the
// primary key of ParticipantsDatabase.
type ParticipantId string

// GuidPrefixLength is the number of bytes in a GuidPrefix, matching the
// RTPS wire layout this type is modeled after.
const GuidPrefixLength = 12

// EntityIdLength is the number of bytes in an EntityId.
const EntityIdLength = 4

// GuidPrefix identifies a participant's DDS-level presence, globally.
type GuidPrefix [GuidPrefixLength]byte

// EntityId identifies one endpoint inside a participant.
type EntityId [EntityIdLength]byte

// Guid globally identifies one endpoint (reader or writer).
type Guid struct {
	Prefix GuidPrefix
	Entity EntityId
}

func (g Guid) String() string {
	return fmt.Sprintf("%x.%x", g.Prefix, g.Entity)
}

// NewGuidPrefix derives a deterministic-looking but unique GuidPrefix from
// a ParticipantId, using a UUIDv5 so the same ParticipantId always maps to
// the same prefix within a process (useful for tests and logs).
func NewGuidPrefix(participant ParticipantId) GuidPrefix {
	id := uuid.NewSHA1(uuid.Nil, []byte(participant))
	var prefix GuidPrefix
	copy(prefix[:], id[:GuidPrefixLength])
	return prefix
}

// NewEntityId encodes counter big-endian as an EntityId. The result is
// unique only as far as the caller never passes the same counter twice
// under one GuidPrefix.
func NewEntityId(counter uint32) EntityId {
	var e EntityId
	e[0] = byte(counter >> 24)
	e[1] = byte(counter >> 16)
	e[2] = byte(counter >> 8)
	e[3] = byte(counter)
	return e
}
