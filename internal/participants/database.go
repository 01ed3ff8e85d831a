// Package participants implements the ParticipantsDatabase contract,
// grounded on the teacher's InMemoryEventLog: one sync.RWMutex guarding a
// handful of maps, write lock taken only for mutation.
package participants

import (
	"sync"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
	participantspkg "github.com/ddspipe/ddspipe/pkg/participants"
)

// Database is the concurrency-safe, in-memory ParticipantsDatabase.
type Database struct {
	mu   sync.RWMutex
	byID map[ddstypes.ParticipantId]participant.Participant
}

var _ participantspkg.Database = (*Database)(nil)

// New creates an empty Database.
func New() *Database {
	return &Database{byID: make(map[ddstypes.ParticipantId]participant.Participant)}
}

// Add implements participants.Database.
func (d *Database) Add(p participant.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byID[p.Id()]; exists {
		return ddserrors.NewInconsistency("duplicate participant id %q", p.Id())
	}
	d.byID[p.Id()] = p
	return nil
}

// Remove implements participants.Database.
func (d *Database) Remove(id ddstypes.ParticipantId) error {
	d.mu.Lock()
	p, exists := d.byID[id]
	if exists {
		delete(d.byID, id)
	}
	d.mu.Unlock()

	if !exists {
		return nil
	}
	return p.Close()
}

// Get implements participants.Database.
func (d *Database) Get(id ddstypes.ParticipantId) (participant.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	return p, ok
}

// All implements participants.Database.
func (d *Database) All() []participant.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]participant.Participant, 0, len(d.byID))
	for _, p := range d.byID {
		out = append(out, p)
	}
	return out
}

// Ids implements participants.Database.
func (d *Database) Ids() []ddstypes.ParticipantId {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ddstypes.ParticipantId, 0, len(d.byID))
	for id := range d.byID {
		out = append(out, id)
	}
	return out
}
