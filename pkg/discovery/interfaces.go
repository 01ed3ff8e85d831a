// Package discovery defines the DiscoveryDatabase contract (spec.md C5):
// an in-memory index of observed endpoints that notifies subscribers on
// add, remove and QoS change.
package discovery

import (
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// Endpoint is one observed reader or writer, as reported by a
// participant.DiscoveryEvent.
type Endpoint struct {
	Guid        ddstypes.Guid
	Participant ddstypes.ParticipantId
	Topic       ddstypes.TopicId
	Direction   participant.Direction
	Qos         ddstypes.QosSnapshot
	IsVirtual   bool
}

// ChangeKind distinguishes the three notifications a subscriber receives.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	QosChanged
)

// Change is delivered to every subscriber when the database is mutated.
type Change struct {
	Kind     ChangeKind
	Endpoint Endpoint
	// PreviousQos is only meaningful for Kind == QosChanged.
	PreviousQos ddstypes.QosSnapshot
}

// Subscriber receives Changes as they happen. Implementations must not
// block; DdsPipe's orchestrator thread calls subscribers synchronously.
type Subscriber func(Change)

// Database is the observed-endpoint index that DdsPipe consumes to decide
// which bridges should exist and be enabled.
type Database interface {
	// Observe records (or updates) an endpoint reported by a participant.
	// Adding an endpoint already known by Guid with different Qos is
	// reported as QosChanged instead of Added.
	Observe(ep Endpoint)

	// Forget removes the endpoint identified by guid, if known.
	Forget(guid ddstypes.Guid)

	// Endpoints returns a snapshot of every endpoint currently observed
	// on topic.
	Endpoints(topic ddstypes.TopicId) []Endpoint

	// Topics returns every distinct topic with at least one observed
	// endpoint.
	Topics() []ddstypes.TopicId

	// Subscribe registers fn to receive every future Change. Returns an
	// unsubscribe function.
	Subscribe(fn Subscriber) (unsubscribe func())
}
