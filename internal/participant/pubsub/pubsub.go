// Package pubsub implements the "pubsub" participant kind over NATS
// core publish/subscribe, grounded on C360Studio-semstreams/natsclient's
// Client: it wraps github.com/nats-io/nats.go directly rather than
// introducing a second abstraction layer, and keeps no connection-status
// state of its own.
package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/internal/logging"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
	"github.com/ddspipe/ddspipe/pkg/payloadpool"
)

// Kind is the factory-registered name for this participant kind.
const Kind = "pubsub"

// wireSample is the JSON envelope samples travel as over NATS. Only the
// fields needed to reconstruct a forwarded ddstypes.Sample are carried;
// the payload itself rides as a []byte, which encoding/json encodes as a
// base64 string.
type wireSample struct {
	Payload               []byte `json:"payload"`
	SourceGuid            string `json:"source_guid"`
	SourceTimestampNs     uint64 `json:"source_timestamp_ns"`
	SampleIdentitySeq     uint64 `json:"sample_identity_seq,omitempty"`
	RelatedIdentitySeq    uint64 `json:"related_identity_seq,omitempty"`
}

// Participant is a NATS-backed Participant: a Reader subscribes to a
// topic's subject and a Writer publishes to it.
type Participant struct {
	id   ddstypes.ParticipantId
	conn *nats.Conn
	log  logging.Logger

	mu        sync.Mutex
	endpoints map[ddstypes.TopicId]*topicEndpoints
	closed    bool
}

type topicEndpoints struct {
	reader *Reader
	writer *Writer
}

var _ participant.Participant = (*Participant)(nil)

// Connect dials url and returns a Participant identified by id.
func Connect(id ddstypes.ParticipantId, url string, log logging.Logger) (*Participant, error) {
	if log == nil {
		log = logging.Discard()
	}
	conn, err := nats.Connect(url, nats.Name(string(id)))
	if err != nil {
		return nil, ddserrors.NewInitialization("connecting to NATS at %s: %v", url, err).WithCause(err)
	}
	return &Participant{id: id, conn: conn, log: log, endpoints: make(map[ddstypes.TopicId]*topicEndpoints)}, nil
}

func (p *Participant) Id() ddstypes.ParticipantId { return p.id }
func (p *Participant) Kind() string                { return Kind }

func subject(topic ddstypes.TopicId) string {
	return "ddspipe." + topic.Kind.String() + "." + topic.Name
}

// CreateReader implements participant.Participant.
func (p *Participant) CreateReader(ctx context.Context, topic ddstypes.TopicId) (participant.Reader, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	eps, err := p.endpointsForLocked(topic)
	if err != nil {
		return nil, false, err
	}
	return eps.reader, true, nil
}

// CreateWriter implements participant.Participant.
func (p *Participant) CreateWriter(ctx context.Context, topic ddstypes.TopicId) (participant.Writer, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	eps, err := p.endpointsForLocked(topic)
	if err != nil {
		return nil, false, err
	}
	return eps.writer, true, nil
}

func (p *Participant) endpointsForLocked(topic ddstypes.TopicId) (*topicEndpoints, error) {
	if eps, ok := p.endpoints[topic]; ok {
		return eps, nil
	}

	prefix := ddstypes.NewGuidPrefix(p.id)
	n := uint32(2*len(p.endpoints) + 1)
	reader := &Reader{guid: ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n)}, topic: topic, log: p.log}
	sub, err := p.conn.Subscribe(subject(topic), reader.onMessage)
	if err != nil {
		return nil, ddserrors.NewInitialization("subscribing to %s: %v", subject(topic), err).WithCause(err)
	}
	reader.sub = sub

	writer := &Writer{guid: ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n + 1)}, topic: topic, conn: p.conn}

	eps := &topicEndpoints{reader: reader, writer: writer}
	p.endpoints[topic] = eps
	return eps, nil
}

func (p *Participant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {
	// NATS core pub/sub carries no discovery protocol of its own, so this
	// kind reports no discovery events and fn is not kept. Matches the
	// teacher's GRPCPeerLink
	// leaving capability hooks unwired when the underlying transport has
	// nothing to report.
}

// Close implements participant.Participant.
func (p *Participant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, eps := range p.endpoints {
		eps.reader.Close()
	}
	p.conn.Close()
	return nil
}

// Reader implements participant.Reader by buffering messages delivered
// through a NATS subscription callback.
type Reader struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId
	log   logging.Logger
	sub   *nats.Subscription

	mu     sync.Mutex
	buffer []ddstypes.Sample
	onData participant.DataAvailableFunc
}

func (r *Reader) Guid() ddstypes.Guid     { return r.guid }
func (r *Reader) Topic() ddstypes.TopicId { return r.topic }

func (r *Reader) SetDataAvailableCallback(fn participant.DataAvailableFunc) {
	r.mu.Lock()
	r.onData = fn
	r.mu.Unlock()
}

func (r *Reader) Take() (ddstypes.Sample, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) == 0 {
		return ddstypes.Sample{}, false, nil
	}
	sample := r.buffer[0]
	r.buffer = r.buffer[1:]
	return sample, true, nil
}

func (r *Reader) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer) > 0
}

func (r *Reader) Close() error {
	if r.sub != nil {
		return r.sub.Unsubscribe()
	}
	return nil
}

func (r *Reader) onMessage(msg *nats.Msg) {
	var wire wireSample
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		r.log.Warnf("discarding malformed message on %s: %v", msg.Subject, err)
		return
	}
	sample := ddstypes.Sample{
		Payload:           payloadpool.Payload{Bytes: wire.Payload, Length: uint32(len(wire.Payload))},
		SourceTimestampNs: wire.SourceTimestampNs,
		WriteParams: ddstypes.WriteParams{
			SampleIdentity:        ddstypes.SampleIdentity{SequenceNumber: wire.SampleIdentitySeq},
			RelatedSampleIdentity: ddstypes.SampleIdentity{SequenceNumber: wire.RelatedIdentitySeq},
		},
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, sample)
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Writer implements participant.Writer by publishing a JSON envelope to
// the topic's NATS subject.
type Writer struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId
	conn  *nats.Conn
}

func (w *Writer) Guid() ddstypes.Guid     { return w.guid }
func (w *Writer) Topic() ddstypes.TopicId { return w.topic }

func (w *Writer) Write(ctx context.Context, sample ddstypes.Sample) error {
	var raw []byte
	if sample.Payload.Bytes != nil {
		raw = sample.Payload.Bytes
	}
	wire := wireSample{
		Payload:            raw,
		SourceGuid:         sample.SourceGuid.String(),
		SourceTimestampNs:  sample.SourceTimestampNs,
		SampleIdentitySeq:  sample.WriteParams.SampleIdentity.SequenceNumber,
		RelatedIdentitySeq: sample.WriteParams.RelatedSampleIdentity.SequenceNumber,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return ddserrors.NewTransport(err, "encoding sample for %s", subject(w.topic))
	}
	if err := w.conn.Publish(subject(w.topic), data); err != nil {
		return ddserrors.NewTransport(err, "publishing to %s", subject(w.topic))
	}
	return nil
}

func (w *Writer) Close() error { return nil }
