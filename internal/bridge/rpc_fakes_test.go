package bridge

import (
	"context"
	"sync"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
)

// fakeRpcParticipant serves the up-to-four endpoints an RpcBridge asks
// for on a given request/reply topic pair: request_reader/reply_writer
// (server side) and reply_reader/request_writer (client side).
type fakeRpcParticipant struct {
	id           ddstypes.ParticipantId
	requestTopic ddstypes.TopicId
	replyTopic   ddstypes.TopicId

	hasRequestReader bool
	hasReplyWriter   bool
	hasReplyReader   bool
	hasRequestWriter bool

	requestReader *fakeReader
	replyWriter   *fakeWriter
	replyReader   *fakeReader
	requestWriter *fakeWriter

	listenerMu sync.Mutex
}

func newFakeRpcParticipant(id ddstypes.ParticipantId, rpc ddstypes.RpcTopic, serverSide, clientSide bool) *fakeRpcParticipant {
	p := &fakeRpcParticipant{
		id:           id,
		requestTopic: rpc.RequestTopic(),
		replyTopic:   rpc.ReplyTopic(),
	}
	entity := ddstypes.NewEntityId(1)
	guid := ddstypes.Guid{Prefix: ddstypes.NewGuidPrefix(id), Entity: entity}

	if serverSide {
		p.hasRequestReader = true
		p.hasReplyWriter = true
		p.requestReader = newFakeReader(guid, p.requestTopic)
		p.replyWriter = newFakeWriter(guid, p.replyTopic)
	}
	if clientSide {
		p.hasReplyReader = true
		p.hasRequestWriter = true
		p.replyReader = newFakeReader(guid, p.replyTopic)
		p.requestWriter = newFakeWriter(guid, p.requestTopic)
	}
	return p
}

func (p *fakeRpcParticipant) Id() ddstypes.ParticipantId { return p.id }
func (p *fakeRpcParticipant) Kind() string                { return "fake-rpc" }

func (p *fakeRpcParticipant) CreateReader(ctx context.Context, topic ddstypes.TopicId) (participant.Reader, bool, error) {
	if p.hasRequestReader && topic.Equal(p.requestTopic) {
		return p.requestReader, true, nil
	}
	if p.hasReplyReader && topic.Equal(p.replyTopic) {
		return p.replyReader, true, nil
	}
	return nil, false, nil
}

func (p *fakeRpcParticipant) CreateWriter(ctx context.Context, topic ddstypes.TopicId) (participant.Writer, bool, error) {
	if p.hasReplyWriter && topic.Equal(p.replyTopic) {
		return p.replyWriter, true, nil
	}
	if p.hasRequestWriter && topic.Equal(p.requestTopic) {
		return p.requestWriter, true, nil
	}
	return nil, false, nil
}

func (p *fakeRpcParticipant) SetDiscoveryListener(fn func(participant.DiscoveryEvent)) {}

func (p *fakeRpcParticipant) Close() error { return nil }
