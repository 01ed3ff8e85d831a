// Package echo implements the "echo" participant kind: an in-process,
// loopback Reader/Writer pair over a mutex-guarded buffer, with no
// external transport. Grounded on the teacher's TrustedClient/
// InMemoryEventLog channel-delivery pattern (deliver by invoking a
// registered callback rather than blocking the producer on a channel
// send). Used by the pair-echo and blocked-topic scenarios, and by any
// harness that wants to drive samples into the forwarding fabric
// without a real DDS/NATS/gRPC transport.
package echo

import (
	"context"
	"sync"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// Kind is the factory-registered name for this participant kind.
const Kind = "echo"

// Participant serves one Reader/Writer pair per topic it is asked to
// create endpoints for; every topic gets an independent pair.
type Participant struct {
	id ddstypes.ParticipantId

	mu        sync.Mutex
	endpoints map[ddstypes.TopicId]*topicEndpoints
	listener  func(participant.DiscoveryEvent)
	closed    bool
}

type topicEndpoints struct {
	reader *Reader
	writer *Writer
}

var _ participant.Participant = (*Participant)(nil)

// New creates an echo Participant identified by id.
func New(id ddstypes.ParticipantId) *Participant {
	return &Participant{id: id, endpoints: make(map[ddstypes.TopicId]*topicEndpoints)}
}

func (p *Participant) Id() ddstypes.ParticipantId { return p.id }
func (p *Participant) Kind() string                { return Kind }

// CreateReader implements participant.Participant.
func (p *Participant) CreateReader(ctx context.Context, topic ddstypes.TopicId) (participant.Reader, bool, error) {
	eps := p.endpointsFor(topic)
	return eps.reader, true, nil
}

// CreateWriter implements participant.Participant.
func (p *Participant) CreateWriter(ctx context.Context, topic ddstypes.TopicId) (participant.Writer, bool, error) {
	eps := p.endpointsFor(topic)
	return eps.writer, true, nil
}

func (p *Participant) endpointsFor(topic ddstypes.TopicId) *topicEndpoints {
	p.mu.Lock()
	defer p.mu.Unlock()

	if eps, ok := p.endpoints[topic]; ok {
		return eps
	}
	prefix := ddstypes.NewGuidPrefix(p.id)
	n := uint32(2*len(p.endpoints) + 1)
	eps := &topicEndpoints{
		reader: newReader(ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n)}, topic),
		writer: newWriter(ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n + 1)}, topic),
	}
	p.endpoints[topic] = eps
	return eps
}

// SetDiscoveryListener implements participant.Participant. Echo
// participants report no discovery events of their own; discovery for
// this kind is driven externally by whatever harness calls Reader's
// Publish (mirroring a real transport's local client).
func (p *Participant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
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
		eps.writer.Close()
	}
	return nil
}

// Reader implements participant.Reader over a FIFO buffer. Publish is
// the production equivalent of a real transport's "new sample
// arrived" — call it to feed a sample as if a local client on this
// participant had just written it.
type Reader struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu     sync.Mutex
	buffer []ddstypes.Sample
	onData participant.DataAvailableFunc
	closed bool
}

func newReader(guid ddstypes.Guid, topic ddstypes.TopicId) *Reader {
	return &Reader{guid: guid, topic: topic}
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
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Publish appends sample to the buffer and notifies the registered
// DataAvailableFunc, exactly as a real transport thread would on
// noticing new data.
func (r *Reader) Publish(sample ddstypes.Sample) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ddserrors.NewDisabled("publish on closed echo reader")
	}
	r.buffer = append(r.buffer, sample)
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// Writer implements participant.Writer by recording every delivered
// sample for later retrieval via Deliveries.
type Writer struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu       sync.Mutex
	received []ddstypes.Sample
	closed   bool
}

func newWriter(guid ddstypes.Guid, topic ddstypes.TopicId) *Writer {
	return &Writer{guid: guid, topic: topic}
}

func (w *Writer) Guid() ddstypes.Guid     { return w.guid }
func (w *Writer) Topic() ddstypes.TopicId { return w.topic }

func (w *Writer) Write(ctx context.Context, sample ddstypes.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ddserrors.NewDisabled("write on closed echo writer")
	}
	w.received = append(w.received, sample)
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Deliveries returns a snapshot of every sample written so far.
func (w *Writer) Deliveries() []ddstypes.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ddstypes.Sample(nil), w.received...)
}
