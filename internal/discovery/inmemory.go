// Package discovery implements discovery.Database: a mutex-guarded index
// of observed endpoints plus a list of subscriber callbacks, grounded on
// the teacher's InMemoryEventLog shape (one RWMutex, plain maps) combined
// with the subscriber fan-out used by pkg/httpclient's SSE streaming.
package discovery

import (
	"sync"

	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	discoverypkg "github.com/ddspipe/ddspipe/pkg/discovery"
)

// Database is the concurrency-safe, in-memory discovery.Database
// implementation.
type Database struct {
	mu          sync.RWMutex
	byGuid      map[ddstypes.Guid]discoverypkg.Endpoint
	byTopic     map[ddstypes.TopicId]map[ddstypes.Guid]struct{}
	subscribers map[int]discoverypkg.Subscriber
	nextSubId   int
}

var _ discoverypkg.Database = (*Database)(nil)

// New creates an empty Database.
func New() *Database {
	return &Database{
		byGuid:      make(map[ddstypes.Guid]discoverypkg.Endpoint),
		byTopic:     make(map[ddstypes.TopicId]map[ddstypes.Guid]struct{}),
		subscribers: make(map[int]discoverypkg.Subscriber),
	}
}

// Observe implements discovery.Database.
func (d *Database) Observe(ep discoverypkg.Endpoint) {
	d.mu.Lock()
	existing, known := d.byGuid[ep.Guid]
	d.byGuid[ep.Guid] = ep

	topicSet, ok := d.byTopic[ep.Topic]
	if !ok {
		topicSet = make(map[ddstypes.Guid]struct{})
		d.byTopic[ep.Topic] = topicSet
	}
	topicSet[ep.Guid] = struct{}{}

	var change discoverypkg.Change
	switch {
	case !known:
		change = discoverypkg.Change{Kind: discoverypkg.Added, Endpoint: ep}
	case !existing.Qos.Equal(ep.Qos):
		change = discoverypkg.Change{Kind: discoverypkg.QosChanged, Endpoint: ep, PreviousQos: existing.Qos}
	default:
		d.mu.Unlock()
		return
	}
	subs := d.snapshotSubscribersLocked()
	d.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Forget implements discovery.Database.
func (d *Database) Forget(guid ddstypes.Guid) {
	d.mu.Lock()
	ep, known := d.byGuid[guid]
	if !known {
		d.mu.Unlock()
		return
	}
	delete(d.byGuid, guid)
	if set, ok := d.byTopic[ep.Topic]; ok {
		delete(set, guid)
		if len(set) == 0 {
			delete(d.byTopic, ep.Topic)
		}
	}
	subs := d.snapshotSubscribersLocked()
	d.mu.Unlock()

	change := discoverypkg.Change{Kind: discoverypkg.Removed, Endpoint: ep}
	for _, fn := range subs {
		fn(change)
	}
}

// Endpoints implements discovery.Database.
func (d *Database) Endpoints(topic ddstypes.TopicId) []discoverypkg.Endpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.byTopic[topic]
	out := make([]discoverypkg.Endpoint, 0, len(set))
	for guid := range set {
		out = append(out, d.byGuid[guid])
	}
	return out
}

// Topics implements discovery.Database.
func (d *Database) Topics() []ddstypes.TopicId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ddstypes.TopicId, 0, len(d.byTopic))
	for topic := range d.byTopic {
		out = append(out, topic)
	}
	return out
}

// Subscribe implements discovery.Database.
func (d *Database) Subscribe(fn discoverypkg.Subscriber) func() {
	d.mu.Lock()
	id := d.nextSubId
	d.nextSubId++
	d.subscribers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// snapshotSubscribersLocked must be called with d.mu held.
func (d *Database) snapshotSubscribersLocked() []discoverypkg.Subscriber {
	out := make([]discoverypkg.Subscriber, 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		out = append(out, fn)
	}
	return out
}
