// Package wire implements the "wire" participant kind over a gRPC
// streaming transport, grounded on the teacher's internal/peerlink's
// GRPCPeerLink + pkg/peerlink interfaces. Connection lifecycle is real;
// the sample codec is intentionally a thin, explicitly-incomplete layer
// mirroring the teacher's own "not implemented" stubs, matching
// spec.md's non-goal that the network transport itself is not
// re-specified by this system.
package wire

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// Kind is the factory-registered name for this participant kind.
const Kind = "wire"

// Participant is a gRPC-backed Participant. Dial establishes the
// connection; per-topic Reader/Writer pairs share it.
type Participant struct {
	id     ddstypes.ParticipantId
	target string

	mu        sync.Mutex
	conn      *grpc.ClientConn
	endpoints map[ddstypes.TopicId]*topicEndpoints
	closed    bool
}

type topicEndpoints struct {
	reader *Reader
	writer *Writer
}

var _ participant.Participant = (*Participant)(nil)

// Dial connects to target and returns a Participant identified by id.
func Dial(id ddstypes.ParticipantId, target string) (*Participant, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, ddserrors.NewInitialization("dialing %s: %v", target, err).WithCause(err)
	}
	return &Participant{id: id, target: target, conn: conn, endpoints: make(map[ddstypes.TopicId]*topicEndpoints)}, nil
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
		reader: &Reader{guid: ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n)}, topic: topic},
		writer: &Writer{guid: ddstypes.Guid{Prefix: prefix, Entity: ddstypes.NewEntityId(n + 1)}, topic: topic, conn: p.conn},
	}
	p.endpoints[topic] = eps
	return eps
}

func (p *Participant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {
	// This kind has no discovery RPC: it reports no discovery events and
	// fn is not kept (spec.md's transport non-goal).
}

// Close implements participant.Participant.
func (p *Participant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// Reader implements participant.Reader. Receiving samples over the
// wire transport requires the streaming RPC this kind does not
// implement yet; HasData/Take always report empty.
type Reader struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu     sync.Mutex
	onData participant.DataAvailableFunc
}

func (r *Reader) Guid() ddstypes.Guid     { return r.guid }
func (r *Reader) Topic() ddstypes.TopicId { return r.topic }

func (r *Reader) SetDataAvailableCallback(fn participant.DataAvailableFunc) {
	r.mu.Lock()
	r.onData = fn
	r.mu.Unlock()
}

func (r *Reader) Take() (ddstypes.Sample, bool, error) { return ddstypes.Sample{}, false, nil }

func (r *Reader) HasData() bool { return false }

func (r *Reader) Close() error { return nil }

// Writer implements participant.Writer. Write always returns an
// UnsupportedError and sends nothing, mirroring the teacher's
// GRPCPeerLink stub methods.
type Writer struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId
	conn  *grpc.ClientConn
}

func (w *Writer) Guid() ddstypes.Guid     { return w.guid }
func (w *Writer) Topic() ddstypes.TopicId { return w.topic }

func (w *Writer) Write(ctx context.Context, sample ddstypes.Sample) error {
	return ddserrors.NewUnsupported("wire participant: Write is not implemented")
}

func (w *Writer) Close() error { return nil }
