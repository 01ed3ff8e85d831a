// Package registry defines the ServiceRegistry contract (spec.md C8): for
// one RPC topic's proxy-client path on one participant, it correlates an
// outstanding request to the proxy-server participant and sample
// identity that must receive the eventual reply.
package registry

import (
	"time"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
)

// Entry is what a Registry stores per outstanding request: where the
// reply must be routed back to.
type Entry struct {
	OriginParticipant ddstypes.ParticipantId
	OriginIdentity    ddstypes.SampleIdentity
	EnqueuedAt        time.Time
}

// Registry correlates requests forwarded through one RpcBridge proxy-
// client path to the proxy-server participant awaiting the reply.
// Implementations must make Register/Lookup/Remove O(1).
type Registry interface {
	// Register records that requestIdentity was forwarded on behalf of
	// originParticipant/originIdentity. MUST be called before the request
	// is written to its peer so a reply arriving instantly still
	// correlates.
	Register(requestIdentity ddstypes.SampleIdentity, originParticipant ddstypes.ParticipantId, originIdentity ddstypes.SampleIdentity)

	// Lookup returns the Entry registered for requestIdentity, if any.
	Lookup(requestIdentity ddstypes.SampleIdentity) (Entry, bool)

	// Remove deletes the entry for requestIdentity. A matching reply
	// removes its entry after it is forwarded; disabling the owning
	// bridge clears every entry via Clear.
	Remove(requestIdentity ddstypes.SampleIdentity)

	// Clear removes every outstanding entry, used when the owning
	// RpcBridge is disabled.
	Clear()

	// Len reports the number of outstanding entries, used for tests and
	// diagnostics.
	Len() int
}
