package ddspipe

import (
	"context"
	"sync"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// fakeReader is a channel-backed participant.Reader, used here the same
// way internal/bridge's test doubles drive DataBridge/RpcBridge: no real
// transport, just a buffer and a registered callback.
type fakeReader struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu     sync.Mutex
	buffer []ddstypes.Sample
	onData participant.DataAvailableFunc
	closed bool
}

func newFakeReader(guid ddstypes.Guid, topic ddstypes.TopicId) *fakeReader {
	return &fakeReader{guid: guid, topic: topic}
}

func (r *fakeReader) Guid() ddstypes.Guid     { return r.guid }
func (r *fakeReader) Topic() ddstypes.TopicId { return r.topic }

func (r *fakeReader) SetDataAvailableCallback(fn participant.DataAvailableFunc) {
	r.mu.Lock()
	r.onData = fn
	r.mu.Unlock()
}

func (r *fakeReader) Take() (ddstypes.Sample, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) == 0 {
		return ddstypes.Sample{}, false, nil
	}
	sample := r.buffer[0]
	r.buffer = r.buffer[1:]
	return sample, true, nil
}

func (r *fakeReader) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer) > 0
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) push(sample ddstypes.Sample) {
	r.mu.Lock()
	r.buffer = append(r.buffer, sample)
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeWriter records every sample written to it.
type fakeWriter struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu       sync.Mutex
	received []ddstypes.Sample
	closed   bool
}

func newFakeWriter(guid ddstypes.Guid, topic ddstypes.TopicId) *fakeWriter {
	return &fakeWriter{guid: guid, topic: topic}
}

func (w *fakeWriter) Guid() ddstypes.Guid     { return w.guid }
func (w *fakeWriter) Topic() ddstypes.TopicId { return w.topic }

func (w *fakeWriter) Write(ctx context.Context, sample ddstypes.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received = append(w.received, sample)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) snapshot() []ddstypes.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ddstypes.Sample(nil), w.received...)
}

// fakeParticipant serves a pre-wired Reader and/or Writer for exactly one
// data topic.
type fakeParticipant struct {
	id     ddstypes.ParticipantId
	topic  ddstypes.TopicId
	reader *fakeReader
	writer *fakeWriter
}

func newFakeParticipant(id ddstypes.ParticipantId, topic ddstypes.TopicId, withReader, withWriter bool) *fakeParticipant {
	p := &fakeParticipant{id: id, topic: topic}
	guid := ddstypes.Guid{Prefix: ddstypes.NewGuidPrefix(id), Entity: ddstypes.NewEntityId(1)}
	if withReader {
		p.reader = newFakeReader(guid, topic)
	}
	if withWriter {
		p.writer = newFakeWriter(ddstypes.Guid{Prefix: guid.Prefix, Entity: ddstypes.NewEntityId(2)}, topic)
	}
	return p
}

func (p *fakeParticipant) Id() ddstypes.ParticipantId { return p.id }
func (p *fakeParticipant) Kind() string                { return "fake" }

func (p *fakeParticipant) CreateReader(ctx context.Context, topic ddstypes.TopicId) (participant.Reader, bool, error) {
	if p.reader == nil || !topic.Equal(p.topic) {
		return nil, false, nil
	}
	return p.reader, true, nil
}

func (p *fakeParticipant) CreateWriter(ctx context.Context, topic ddstypes.TopicId) (participant.Writer, bool, error) {
	if p.writer == nil || !topic.Equal(p.topic) {
		return nil, false, nil
	}
	return p.writer, true, nil
}

func (p *fakeParticipant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {}

func (p *fakeParticipant) Close() error { return nil }

func (p *fakeParticipant) guid() ddstypes.Guid {
	if p.reader != nil {
		return p.reader.Guid()
	}
	return p.writer.Guid()
}

// fakeRpcParticipant serves the up-to-four endpoints an RpcBridge asks
// for on a request/reply topic pair.
type fakeRpcParticipant struct {
	id           ddstypes.ParticipantId
	requestTopic ddstypes.TopicId
	replyTopic   ddstypes.TopicId

	requestReader *fakeReader
	replyWriter   *fakeWriter
	replyReader   *fakeReader
	requestWriter *fakeWriter
}

func newFakeRpcParticipant(id ddstypes.ParticipantId, rpc ddstypes.RpcTopic) *fakeRpcParticipant {
	guid := ddstypes.Guid{Prefix: ddstypes.NewGuidPrefix(id), Entity: ddstypes.NewEntityId(1)}
	p := &fakeRpcParticipant{
		id:            id,
		requestTopic:  rpc.RequestTopic(),
		replyTopic:    rpc.ReplyTopic(),
		requestReader: newFakeReader(guid, rpc.RequestTopic()),
		replyWriter:   newFakeWriter(guid, rpc.ReplyTopic()),
		replyReader:   newFakeReader(guid, rpc.ReplyTopic()),
		requestWriter: newFakeWriter(guid, rpc.RequestTopic()),
	}
	return p
}

func (p *fakeRpcParticipant) Id() ddstypes.ParticipantId { return p.id }
func (p *fakeRpcParticipant) Kind() string                { return "fake-rpc" }

func (p *fakeRpcParticipant) CreateReader(ctx context.Context, topic ddstypes.TopicId) (participant.Reader, bool, error) {
	if topic.Equal(p.requestTopic) {
		return p.requestReader, true, nil
	}
	if topic.Equal(p.replyTopic) {
		return p.replyReader, true, nil
	}
	return nil, false, nil
}

func (p *fakeRpcParticipant) CreateWriter(ctx context.Context, topic ddstypes.TopicId) (participant.Writer, bool, error) {
	if topic.Equal(p.replyTopic) {
		return p.replyWriter, true, nil
	}
	if topic.Equal(p.requestTopic) {
		return p.requestWriter, true, nil
	}
	return nil, false, nil
}

func (p *fakeRpcParticipant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {}

func (p *fakeRpcParticipant) Close() error { return nil }
