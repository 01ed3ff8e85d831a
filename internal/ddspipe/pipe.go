// Package ddspipe implements ddspipe.Pipe: the orchestrator that owns
// every Bridge and drives their lifecycle off DiscoveryDatabase events
// and configuration reloads, per spec.md 4.5. Lock ordering follows
// spec.md 5's fixed chain (PayloadPool -> ServiceRegistry -> Bridge ->
// DdsPipe): Pipe's own mutex is always the outermost lock taken, so it
// is safe to call into a Bridge while holding it.
package ddspipe

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	bridgeimpl "github.com/ddspipe/ddspipe/internal/bridge"
	"github.com/ddspipe/ddspipe/internal/policy"
	"github.com/ddspipe/ddspipe/pkg/bridge"
	"github.com/ddspipe/ddspipe/pkg/ddspipe"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/discovery"
	"github.com/ddspipe/ddspipe/pkg/participant"
	"github.com/ddspipe/ddspipe/pkg/participants"
	"github.com/ddspipe/ddspipe/pkg/payloadpool"
	"github.com/ddspipe/ddspipe/pkg/slotpool"
)

// Pipe is the concurrency-safe ddspipe.Pipe implementation.
type Pipe struct {
	pdb         participants.Database
	discoveryDB discovery.Database
	pool        payloadpool.Pool
	slots       slotpool.Pool
	log         *slog.Logger

	rpcServices []ddstypes.RpcTopic

	mu           sync.Mutex
	activePolicy policy.AllowedTopicList
	dataBridges  map[ddstypes.TopicId]*bridgeimpl.DataBridge
	rpcBridges   map[string]*bridgeimpl.RpcBridge
	enabled      bool
	unsubscribe  func()
}

var _ ddspipe.Pipe = (*Pipe)(nil)

// New creates a Pipe and subscribes it to discoveryDB. rpcServices
// declares the RPC request/reply type pairs this process knows about;
// DdsPipe cannot infer a reply type from the request topic alone.
func New(
	pdb participants.Database,
	discoveryDB discovery.Database,
	pool payloadpool.Pool,
	slots slotpool.Pool,
	rpcServices []ddstypes.RpcTopic,
	log *slog.Logger,
) *Pipe {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipe{
		pdb:         pdb,
		discoveryDB: discoveryDB,
		pool:        pool,
		slots:       slots,
		log:         log,
		rpcServices: append([]ddstypes.RpcTopic(nil), rpcServices...),
		dataBridges: make(map[ddstypes.TopicId]*bridgeimpl.DataBridge),
		rpcBridges:  make(map[string]*bridgeimpl.RpcBridge),
	}
	p.unsubscribe = discoveryDB.Subscribe(p.onDiscoveryChange)
	return p
}

// Close unsubscribes from the DiscoveryDatabase. Not part of
// ddspipe.Pipe; used by callers that want to drop a Pipe entirely.
func (p *Pipe) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// EnsureBuiltinTopics creates (but does not force-enable) a DataBridge
// for every topic a configuration's builtin_topics section pre-declares,
// so the bridge exists from construction instead of waiting for the
// first discovery event on it. Not part of ddspipe.Pipe; cmd/ddspipe
// calls it once, right after New, for topics named in Document's
// BuiltinTopics.
func (p *Pipe) EnsureBuiltinTopics(topics []ddstypes.TopicId) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, topic := range topics {
		if topic.Kind != ddstypes.KindData {
			continue
		}
		if _, ok := p.dataBridges[topic]; ok {
			continue
		}
		p.dataBridges[topic] = bridgeimpl.NewDataBridge(topic, p.pdb, p.pool, p.slots, p.log)
	}
}

// Enable implements ddspipe.Pipe.
func (p *Pipe) Enable() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enabled = true
	for _, topic := range p.discoveryDB.Topics() {
		p.ensureAndEnableLocked(topic)
	}
	return nil
}

// Disable implements ddspipe.Pipe. Every owned bridge is disabled
// concurrently; Bridge.Disable already blocks until in-flight work on
// that bridge has joined, so fanning this out bounds Disable's total
// latency to the slowest single bridge rather than their sum.
func (p *Pipe) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enabled = false
	var g errgroup.Group
	for _, b := range p.dataBridges {
		b := b
		g.Go(func() error { b.Disable(); return nil })
	}
	for _, b := range p.rpcBridges {
		b := b
		g.Go(func() error { b.Disable(); return nil })
	}
	_ = g.Wait()
}

// KnownTopics implements ddspipe.Pipe.
func (p *Pipe) KnownTopics() []ddstypes.TopicId {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ddstypes.TopicId, 0, len(p.dataBridges)+len(p.rpcBridges))
	for topic := range p.dataBridges {
		out = append(out, topic)
	}
	for _, rpc := range p.rpcServices {
		if _, ok := p.rpcBridges[rpc.ServiceName]; ok {
			out = append(out, rpc.RequestTopic())
		}
	}
	return out
}

// ReloadConfiguration implements ddspipe.Pipe.
func (p *Pipe) ReloadConfiguration(cfg ddspipe.Configuration) ddspipe.ReloadResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	newPolicy := policy.New(cfg.AllowTopics, cfg.BlockTopics)
	if newPolicy.Equal(p.activePolicy) {
		return ddspipe.NoChange
	}

	oldPolicy := p.activePolicy
	p.activePolicy = newPolicy

	failed := false
	for _, topic := range p.discoveryDB.Topics() {
		wasAllowed := oldPolicy.IsAllowed(topic)
		nowAllowed := newPolicy.IsAllowed(topic)
		if wasAllowed == nowAllowed {
			continue
		}
		if nowAllowed {
			if err := p.ensureAndEnableLockedErr(topic); err != nil {
				p.log.Error("reload: failed to enable newly-allowed topic", "topic", topic.String(), "error", err)
				failed = true
			}
		} else {
			p.disableBridgeForLocked(topic)
		}
	}
	for _, b := range p.rpcBridges {
		if !newPolicy.IsAllowed(b.Topic()) && b.State() == bridge.Enabled {
			b.Disable()
		}
	}

	if failed {
		return ddspipe.Error
	}
	return ddspipe.Ok
}

// onDiscoveryChange is the DiscoveryDatabase subscriber wired at
// construction, implementing spec.md 4.5's discovery callbacks.
func (p *Pipe) onDiscoveryChange(change discovery.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch change.Kind {
	case discovery.Added:
		p.ensureAndEnableLocked(change.Endpoint.Topic)
		if !change.Endpoint.IsVirtual && change.Endpoint.Topic.Kind == ddstypes.KindRpcRequest && change.Endpoint.Direction&participant.DirectionRead != 0 {
			if b, ok := p.rpcBridges[serviceNameFromRequestTopic(change.Endpoint.Topic)]; ok {
				b.DiscoveredService(change.Endpoint.Participant, change.Endpoint.Guid.Prefix)
				if p.enabled && b.State() != bridge.Enabled {
					_ = b.Enable()
				}
			}
		}
	case discovery.Removed:
		if !change.Endpoint.IsVirtual && change.Endpoint.Topic.Kind == ddstypes.KindRpcRequest && change.Endpoint.Direction&participant.DirectionRead != 0 {
			if b, ok := p.rpcBridges[serviceNameFromRequestTopic(change.Endpoint.Topic)]; ok {
				b.RemovedService(change.Endpoint.Participant, change.Endpoint.Guid.Prefix)
			}
		}
	case discovery.QosChanged:
		if forwardingRelevant(change.PreviousQos, change.Endpoint.Qos) {
			p.cycleBridgeForLocked(change.Endpoint.Topic)
		}
	}
}

// forwardingRelevant reports whether a QoS change affects forwarding
// decisions: reliability kind or durability kind differing.
func forwardingRelevant(previous, current ddstypes.QosSnapshot) bool {
	return !previous.Equal(current)
}

// ensureAndEnableLocked creates the bridge for topic if missing and
// enables it when eligible, swallowing errors (matching the
// "runtime event handlers never throw" propagation policy).
func (p *Pipe) ensureAndEnableLocked(topic ddstypes.TopicId) {
	if err := p.ensureAndEnableLockedErr(topic); err != nil {
		p.log.Error("failed to ensure bridge", "topic", topic.String(), "error", err)
	}
}

func (p *Pipe) ensureAndEnableLockedErr(topic ddstypes.TopicId) error {
	if !p.activePolicyOrDefault().IsAllowed(topic) {
		return nil
	}

	switch topic.Kind {
	case ddstypes.KindData:
		b, ok := p.dataBridges[topic]
		if !ok {
			b = bridgeimpl.NewDataBridge(topic, p.pdb, p.pool, p.slots, p.log)
			p.dataBridges[topic] = b
		}
		if !p.enabled {
			return nil
		}
		if !p.hasReadAndWriteDirection(topic) {
			return nil
		}
		return b.Enable()

	case ddstypes.KindRpcRequest:
		serviceName := serviceNameFromRequestTopic(topic)
		service, found := p.findRpcService(serviceName)
		if !found {
			return nil
		}
		b, ok := p.rpcBridges[serviceName]
		if !ok {
			b = bridgeimpl.NewRpcBridge(service, p.pdb, p.pool, p.slots, p.log)
			p.rpcBridges[serviceName] = b
		}
		if !p.enabled || !b.HasReachableServer() {
			return nil
		}
		return b.Enable()
	}
	return nil
}

func (p *Pipe) disableBridgeForLocked(topic ddstypes.TopicId) {
	switch topic.Kind {
	case ddstypes.KindData:
		if b, ok := p.dataBridges[topic]; ok {
			b.Disable()
		}
	case ddstypes.KindRpcRequest:
		if b, ok := p.rpcBridges[serviceNameFromRequestTopic(topic)]; ok {
			b.Disable()
		}
	}
}

func (p *Pipe) cycleBridgeForLocked(topic ddstypes.TopicId) {
	switch topic.Kind {
	case ddstypes.KindData:
		if b, ok := p.dataBridges[topic]; ok && b.State() == bridge.Enabled {
			b.Disable()
			_ = b.Enable()
		}
	case ddstypes.KindRpcRequest:
		if b, ok := p.rpcBridges[serviceNameFromRequestTopic(topic)]; ok && b.State() == bridge.Enabled {
			b.Disable()
			_ = b.Enable()
		}
	}
}

// hasReadAndWriteDirection reports whether at least one reader and one
// writer direction exist across participants for topic, spec.md 4.5's
// enablement precondition for DataBridge.
func (p *Pipe) hasReadAndWriteDirection(topic ddstypes.TopicId) bool {
	var hasRead, hasWrite bool
	for _, ep := range p.discoveryDB.Endpoints(topic) {
		if ep.Direction&participant.DirectionRead != 0 {
			hasRead = true
		}
		if ep.Direction&participant.DirectionWrite != 0 {
			hasWrite = true
		}
	}
	return hasRead && hasWrite
}

func (p *Pipe) findRpcService(serviceName string) (ddstypes.RpcTopic, bool) {
	for _, s := range p.rpcServices {
		if s.ServiceName == serviceName {
			return s, true
		}
	}
	return ddstypes.RpcTopic{}, false
}

// activePolicyOrDefault returns an allow-all policy before the first
// ReloadConfiguration call, matching "allowlist empty is equivalent to
// allow all not blocked".
func (p *Pipe) activePolicyOrDefault() policy.AllowedTopicList {
	return p.activePolicy
}

func serviceNameFromRequestTopic(topic ddstypes.TopicId) string {
	return strings.TrimSuffix(topic.Name, "_Request")
}
