// Package participants defines the ParticipantsDatabase contract: a
// name-indexed registry of active participants with a unique-id
// invariant (spec.md C4).
package participants

import (
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// Database is a readers-many/writers-few registry of the participants
// currently active in this process.
type Database interface {
	// Add registers p. It returns ddserrors-wrapped InconsistencyError if
	// a participant with the same Id is already registered.
	Add(p participant.Participant) error

	// Remove unregisters the participant with the given id, closing it.
	// Removing an unknown id is a no-op.
	Remove(id ddstypes.ParticipantId) error

	// Get returns the participant registered under id, if any.
	Get(id ddstypes.ParticipantId) (participant.Participant, bool)

	// All returns a snapshot of every registered participant.
	All() []participant.Participant

	// Ids returns the ids of every registered participant.
	Ids() []ddstypes.ParticipantId
}
