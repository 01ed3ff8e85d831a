package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	registryimpl "github.com/ddspipe/ddspipe/internal/registry"
	"github.com/ddspipe/ddspipe/pkg/bridge"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
	"github.com/ddspipe/ddspipe/pkg/participants"
	"github.com/ddspipe/ddspipe/pkg/payloadpool"
	"github.com/ddspipe/ddspipe/pkg/registry"
	"github.com/ddspipe/ddspipe/pkg/slotpool"
)

// rpcEndpoints is the per-participant quartet an RpcBridge keeps, per
// spec.md 4.4: proxy-server side receives requests and answers them,
// proxy-client side forwards requests onward and receives their replies.
type rpcEndpoints struct {
	participantId ddstypes.ParticipantId

	// proxy-server side
	requestReader participant.Reader
	replyWriter   participant.Writer
	requestTaskId slotpool.TaskId

	// proxy-client side
	replyReader   participant.Reader
	requestWriter participant.Writer
	replyTaskId   slotpool.TaskId
	serviceReg    registry.Registry

	mu             sync.Mutex
	requestEmitted bool
	replyEmitted   bool
	removed        bool
}

// RpcBridge forwards request/reply samples for one RPC service,
// correlating them through a per-participant ServiceRegistry (spec.md
// C8/C9). Enable itself does not check server reachability; DdsPipe
// enables the bridge only once HasReachableServer reports true.
type RpcBridge struct {
	service ddstypes.RpcTopic
	pdb     participants.Database
	pool    payloadpool.Pool
	slots   slotpool.Pool
	log     *slog.Logger

	stateMu sync.Mutex
	state   bridge.State
	lastErr error

	onTransmission sync.RWMutex

	endpointsMu   sync.RWMutex
	endpoints     map[ddstypes.ParticipantId]*rpcEndpoints
	currentServers map[ddstypes.ParticipantId]map[ddstypes.GuidPrefix]struct{}
}

var _ bridge.Bridge = (*RpcBridge)(nil)

// NewRpcBridge creates an RpcBridge for service, not yet initialized.
func NewRpcBridge(service ddstypes.RpcTopic, pdb participants.Database, pool payloadpool.Pool, slots slotpool.Pool, log *slog.Logger) *RpcBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RpcBridge{
		service:        service,
		pdb:            pdb,
		pool:           pool,
		slots:          slots,
		log:            log,
		state:          bridge.Created,
		endpoints:      make(map[ddstypes.ParticipantId]*rpcEndpoints),
		currentServers: make(map[ddstypes.ParticipantId]map[ddstypes.GuidPrefix]struct{}),
	}
}

// Topic implements bridge.Bridge; an RpcBridge reports its request
// topic as its identity since that is what DdsPipe's AllowedTopicList
// filters on.
func (b *RpcBridge) Topic() ddstypes.TopicId { return b.service.RequestTopic() }

// State implements bridge.Bridge.
func (b *RpcBridge) State() bridge.State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// LastError returns the cause recorded by a failed Enable, if any.
func (b *RpcBridge) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// HasReachableServer reports whether at least one participant currently
// has a non-empty server set, the gate spec.md 4.4 adds on top of the
// base Bridge enable condition.
func (b *RpcBridge) HasReachableServer() bool {
	b.endpointsMu.RLock()
	defer b.endpointsMu.RUnlock()
	for _, set := range b.currentServers {
		if len(set) > 0 {
			return true
		}
	}
	return false
}

// DiscoveredService implements discovered_service(pid, gp): records a
// newly reachable server. The caller (DdsPipe) decides whether this
// makes the bridge eligible to enable.
func (b *RpcBridge) DiscoveredService(pid ddstypes.ParticipantId, gp ddstypes.GuidPrefix) {
	b.endpointsMu.Lock()
	defer b.endpointsMu.Unlock()
	set, ok := b.currentServers[pid]
	if !ok {
		set = make(map[ddstypes.GuidPrefix]struct{})
		b.currentServers[pid] = set
	}
	set[gp] = struct{}{}
}

// RemovedService implements removed_service(pid, gp). If every
// participant's server set becomes empty, the bridge disables itself but
// retains its endpoints for later re-enable.
func (b *RpcBridge) RemovedService(pid ddstypes.ParticipantId, gp ddstypes.GuidPrefix) {
	b.endpointsMu.Lock()
	if set, ok := b.currentServers[pid]; ok {
		delete(set, gp)
		if len(set) == 0 {
			delete(b.currentServers, pid)
		}
	}
	anyLeft := len(b.currentServers) > 0
	b.endpointsMu.Unlock()

	if !anyLeft {
		b.Disable()
	}
}

// Enable implements bridge.Bridge.
func (b *RpcBridge) Enable() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	switch b.state {
	case bridge.Enabled:
		return nil
	case bridge.Created:
		if err := b.initOnce(); err != nil {
			b.lastErr = err
			b.state = bridge.Disabled
			return err
		}
		b.state = bridge.Initialized
	case bridge.Destroyed:
		return ddserrors.NewInitialization("cannot enable a destroyed rpc bridge for service %s", b.service.ServiceName)
	}

	b.state = bridge.Enabled

	b.endpointsMu.RLock()
	for _, ep := range b.endpoints {
		ep.mu.Lock()
		reqStranded, replyStranded := ep.requestEmitted, ep.replyEmitted
		ep.mu.Unlock()
		if reqStranded {
			b.slots.Emit(ep.requestTaskId)
		}
		if replyStranded {
			b.slots.Emit(ep.replyTaskId)
		}
	}
	b.endpointsMu.RUnlock()

	return nil
}

// Disable implements bridge.Bridge. Per spec.md 4.4, endpoints are
// retained so a later re-enable does not need to re-initialize.
func (b *RpcBridge) Disable() {
	b.stateMu.Lock()
	if b.state != bridge.Enabled {
		b.stateMu.Unlock()
		return
	}
	b.state = bridge.Disabled
	b.stateMu.Unlock()

	b.onTransmission.Lock()
	b.onTransmission.Unlock()

	b.endpointsMu.RLock()
	for _, ep := range b.endpoints {
		ep.serviceReg.Clear()
	}
	b.endpointsMu.RUnlock()
}

// Destroy implements bridge.Bridge.
func (b *RpcBridge) Destroy() {
	b.Disable()

	b.stateMu.Lock()
	if b.state == bridge.Destroyed {
		b.stateMu.Unlock()
		return
	}
	b.state = bridge.Destroyed
	b.stateMu.Unlock()

	b.endpointsMu.Lock()
	defer b.endpointsMu.Unlock()
	for _, ep := range b.endpoints {
		ep.mu.Lock()
		ep.removed = true
		ep.mu.Unlock()
		if ep.requestReader != nil {
			_ = ep.requestReader.Close()
		}
		if ep.replyWriter != nil {
			_ = ep.replyWriter.Close()
		}
		if ep.replyReader != nil {
			_ = ep.replyReader.Close()
		}
		if ep.requestWriter != nil {
			_ = ep.requestWriter.Close()
		}
	}
}

// initOnce creates the proxy-server and proxy-client quartet through
// every participant registered in ParticipantsDatabase, one-shot on
// first successful enable.
func (b *RpcBridge) initOnce() error {
	ctx := context.Background()
	requestTopic := b.service.RequestTopic()
	replyTopic := b.service.ReplyTopic()

	b.endpointsMu.Lock()
	defer b.endpointsMu.Unlock()

	for _, p := range b.pdb.All() {
		ep := &rpcEndpoints{
			participantId: p.Id(),
			serviceReg:    registryimpl.New(),
			requestTaskId: slotpool.TaskId(string(p.Id()) + "/" + requestTopic.String() + "/request"),
			replyTaskId:   slotpool.TaskId(string(p.Id()) + "/" + replyTopic.String() + "/reply"),
		}

		reqReader, ok, err := p.CreateReader(ctx, requestTopic)
		if err != nil {
			return ddserrors.NewInitialization("create request reader on participant %q", p.Id()).WithCause(err)
		}
		if ok {
			ep.requestReader = reqReader
		}

		replyW, ok, err := p.CreateWriter(ctx, replyTopic)
		if err != nil {
			return ddserrors.NewInitialization("create reply writer on participant %q", p.Id()).WithCause(err)
		}
		if ok {
			ep.replyWriter = replyW
		}

		replyR, ok, err := p.CreateReader(ctx, replyTopic)
		if err != nil {
			return ddserrors.NewInitialization("create reply reader on participant %q", p.Id()).WithCause(err)
		}
		if ok {
			ep.replyReader = replyR
		}

		reqW, ok, err := p.CreateWriter(ctx, requestTopic)
		if err != nil {
			return ddserrors.NewInitialization("create request writer on participant %q", p.Id()).WithCause(err)
		}
		if ok {
			ep.requestWriter = reqW
		}

		b.endpoints[p.Id()] = ep
		b.registerEndpoints(ep)
	}
	return nil
}

func (b *RpcBridge) registerEndpoints(ep *rpcEndpoints) {
	if ep.requestReader != nil {
		_ = b.slots.Register(ep.requestTaskId, func() { b.transmitRequests(ep) })
		ep.requestReader.SetDataAvailableCallback(func() {
			ep.mu.Lock()
			already := ep.requestEmitted
			ep.requestEmitted = true
			ep.mu.Unlock()
			if !already {
				b.slots.Emit(ep.requestTaskId)
			}
		})
	}
	if ep.replyReader != nil {
		_ = b.slots.Register(ep.replyTaskId, func() { b.transmitReplies(ep) })
		ep.replyReader.SetDataAvailableCallback(func() {
			ep.mu.Lock()
			already := ep.replyEmitted
			ep.replyEmitted = true
			ep.mu.Unlock()
			if !already {
				b.slots.Emit(ep.replyTaskId)
			}
		})
	}
}

// transmitRequests implements the request path of spec.md 4.4: dequeue a
// request from ep's proxy-server reader, register it in every reachable
// peer's ServiceRegistry before writing it onward.
func (b *RpcBridge) transmitRequests(ep *rpcEndpoints) {
	b.onTransmission.RLock()
	defer b.onTransmission.RUnlock()

	for {
		if b.State() != bridge.Enabled {
			return
		}
		ep.mu.Lock()
		removed := ep.removed
		ep.mu.Unlock()
		if removed {
			return
		}

		sample, ok, err := ep.requestReader.Take()
		if err != nil {
			b.log.Warn("request reader take failed", "service", b.service.ServiceName, "error", err)
			continue
		}
		if !ok {
			break
		}

		b.forwardRequest(ep, sample)
	}

	ep.mu.Lock()
	ep.requestEmitted = false
	stillHasData := ep.requestReader.HasData()
	if stillHasData {
		ep.requestEmitted = true
	}
	ep.mu.Unlock()
	if stillHasData {
		b.slots.Emit(ep.requestTaskId)
	}
}

func (b *RpcBridge) forwardRequest(origin *rpcEndpoints, sample ddstypes.Sample) {
	b.endpointsMu.RLock()
	defer b.endpointsMu.RUnlock()

	identity := sample.WriteParams.SampleIdentity
	delivered := false

	for pid, peer := range b.endpoints {
		if pid == origin.participantId || peer.requestWriter == nil {
			continue
		}
		if !b.hasReachableServerLocked(pid) {
			continue
		}

		// Registration MUST happen before the write so an instant reply
		// still correlates.
		peer.serviceReg.Register(identity, origin.participantId, identity)

		shared, err := b.pool.Share(sample.Payload)
		if err != nil {
			b.log.Error("payload share failed", "service", b.service.ServiceName, "error", err)
			peer.serviceReg.Remove(identity)
			continue
		}
		outgoing := sample
		outgoing.Payload = shared

		if err := peer.requestWriter.Write(context.Background(), outgoing); err != nil {
			b.log.Warn("request write failed, keeping registry entry", "service", b.service.ServiceName, "peer", string(pid), "error", err)
		}
		if err := b.pool.Release(shared); err != nil {
			b.log.Error("shared payload release failed", "service", b.service.ServiceName, "error", err)
		}
		delivered = true
	}

	if err := b.pool.Release(sample.Payload); err != nil {
		b.log.Error("payload release failed", "service", b.service.ServiceName, "error", err)
	}
	if !delivered {
		b.log.Debug("request had no reachable server at forward time", "service", b.service.ServiceName)
	}
}

// hasReachableServerLocked must be called with b.endpointsMu held (read
// or write).
func (b *RpcBridge) hasReachableServerLocked(pid ddstypes.ParticipantId) bool {
	set, ok := b.currentServers[pid]
	return ok && len(set) > 0
}

// transmitReplies implements the reply path of spec.md 4.4: dequeue a
// reply from ep's proxy-client reader, correlate it through ep's own
// ServiceRegistry, and write it back to the originating proxy-server
// participant's reply writer.
func (b *RpcBridge) transmitReplies(ep *rpcEndpoints) {
	b.onTransmission.RLock()
	defer b.onTransmission.RUnlock()

	for {
		if b.State() != bridge.Enabled {
			return
		}
		ep.mu.Lock()
		removed := ep.removed
		ep.mu.Unlock()
		if removed {
			return
		}

		sample, ok, err := ep.replyReader.Take()
		if err != nil {
			b.log.Warn("reply reader take failed", "service", b.service.ServiceName, "error", err)
			continue
		}
		if !ok {
			break
		}

		b.forwardReply(ep, sample)
	}

	ep.mu.Lock()
	ep.replyEmitted = false
	stillHasData := ep.replyReader.HasData()
	if stillHasData {
		ep.replyEmitted = true
	}
	ep.mu.Unlock()
	if stillHasData {
		b.slots.Emit(ep.replyTaskId)
	}
}

func (b *RpcBridge) forwardReply(ep *rpcEndpoints, sample ddstypes.Sample) {
	related := sample.WriteParams.RelatedSampleIdentity
	entry, found := ep.serviceReg.Lookup(related)
	if !found {
		b.log.Warn("uncorrelated reply discarded", "service", b.service.ServiceName, "related_identity", related)
		_ = b.pool.Release(sample.Payload)
		return
	}

	b.endpointsMu.RLock()
	origin, ok := b.endpoints[entry.OriginParticipant]
	b.endpointsMu.RUnlock()

	if !ok || origin.replyWriter == nil {
		b.log.Warn("origin participant has no reply writer", "service", b.service.ServiceName, "origin", string(entry.OriginParticipant))
		_ = b.pool.Release(sample.Payload)
		ep.serviceReg.Remove(related)
		return
	}

	outgoing := sample
	outgoing.WriteParams.RelatedSampleIdentity = entry.OriginIdentity

	if err := origin.replyWriter.Write(context.Background(), outgoing); err != nil {
		b.log.Warn("reply write failed", "service", b.service.ServiceName, "error", err)
	}
	_ = b.pool.Release(sample.Payload)
	ep.serviceReg.Remove(related)
}
