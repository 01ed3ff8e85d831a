package ddstypes

import (
	"github.com/ddspipe/ddspipe/pkg/payloadpool"
)

// SampleKind distinguishes a live data update from a disposal/unregister
// notification.
type SampleKind int

const (
	Alive SampleKind = iota
	NotAlive
)

// SampleIdentity correlates an RPC request to its reply. Guid identifies
// the writer that produced the sample and SequenceNumber disambiguates
// successive samples from that writer.
type SampleIdentity struct {
	Writer         Guid
	SequenceNumber uint64
}

// WriteParams carries the RPC correlation metadata attached to request
// and reply samples.
type WriteParams struct {
	SampleIdentity        SampleIdentity
	RelatedSampleIdentity SampleIdentity
}

// Sample is one delivered unit as it travels through a Bridge: opaque
// payload bytes plus the metadata needed to route, log and re-publish it.
//
// Invariant (spec.md DATA MODEL): a Sample traversing a Bridge never has
// ReceiverParticipant equal to the participant that produced it.
type Sample struct {
	Payload           payloadpool.Payload
	SourceGuid        Guid
	SourceTimestampNs uint64
	Kind              SampleKind
	InstanceHandle    []byte
	WriterQos         QosSnapshot
	ReceiverParticipant ParticipantId

	// WriteParams is only meaningful for samples on an RPC topic.
	WriteParams WriteParams
}
