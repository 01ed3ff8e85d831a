package bridge

import (
	"context"
	"sync"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// fakeReader is a channel-backed participant.Reader used to drive
// DataBridge/RpcBridge tests without a real transport.
type fakeReader struct {
	guid  ddstypes.Guid
	topic ddstypes.TopicId

	mu      sync.Mutex
	buffer  []ddstypes.Sample
	onData  participant.DataAvailableFunc
	closed  bool
}

func newFakeReader(guid ddstypes.Guid, topic ddstypes.TopicId) *fakeReader {
	return &fakeReader{guid: guid, topic: topic}
}

func (r *fakeReader) Guid() ddstypes.Guid      { return r.guid }
func (r *fakeReader) Topic() ddstypes.TopicId  { return r.topic }

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

// push appends a sample and invokes the registered data-available
// callback, mirroring a transport thread noticing new data.
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
	failNext bool
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
	if w.failNext {
		w.failNext = false
		return errWriteFailed
	}
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
// topic, matching what the teacher's test doubles look like for narrow
// interfaces.
type fakeParticipant struct {
	id     ddstypes.ParticipantId
	kind   string
	topic  ddstypes.TopicId
	reader *fakeReader
	writer *fakeWriter

	listenerMu sync.Mutex
	listener   func(participant.DiscoveryEvent)
}

func newFakeParticipant(id ddstypes.ParticipantId, topic ddstypes.TopicId, withReader, withWriter bool) *fakeParticipant {
	p := &fakeParticipant{id: id, kind: "fake", topic: topic}
	entity := ddstypes.NewEntityId(1)
	guid := ddstypes.Guid{Prefix: ddstypes.NewGuidPrefix(id), Entity: entity}
	if withReader {
		p.reader = newFakeReader(guid, topic)
	}
	if withWriter {
		p.writer = newFakeWriter(guid, topic)
	}
	return p
}

func (p *fakeParticipant) Id() ddstypes.ParticipantId { return p.id }
func (p *fakeParticipant) Kind() string                { return p.kind }

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

func (p *fakeParticipant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {
	p.listenerMu.Lock()
	p.listener = fn
	p.listenerMu.Unlock()
}

func (p *fakeParticipant) Close() error { return nil }

var errWriteFailed = writeFailedError{}

type writeFailedError struct{}

func (writeFailedError) Error() string { return "fake writer: write failed" }
