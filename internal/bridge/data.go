// Package bridge implements bridge.Bridge for both data and RPC topics,
// grounded on the forwarding algorithm in spec.md 4.3/4.4 and on the
// teacher's InMemoryEventLog mutex discipline (one state mutex, a second
// lock held only for the duration of the operation it protects).
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/bridge"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	"github.com/ddspipe/ddspipe/pkg/participant"
	"github.com/ddspipe/ddspipe/pkg/participants"
	"github.com/ddspipe/ddspipe/pkg/payloadpool"
	"github.com/ddspipe/ddspipe/pkg/slotpool"
)

// readerState tracks the per-reader forwarding bookkeeping described in
// spec.md 4.3: a TaskId, the "emitted" flag, and whether the reader has
// since been removed from the bridge.
type readerState struct {
	participantId ddstypes.ParticipantId
	reader        participant.Reader
	taskId        slotpool.TaskId

	mu      sync.Mutex
	emitted bool
	removed bool
}

// DataBridge forwards samples on one data topic between every
// participant's Reader and every other participant's Writer.
type DataBridge struct {
	topic ddstypes.TopicId
	pdb   participants.Database
	pool  payloadpool.Pool
	slots slotpool.Pool
	log   *slog.Logger

	stateMu sync.Mutex
	state   bridge.State
	lastErr error

	// onTransmission is held in read (shared) mode for the duration of a
	// transmit loop; Disable acquires it in write (exclusive) mode so that
	// once Disable returns, no in-flight send outlives it.
	onTransmission sync.RWMutex

	endpointsMu sync.RWMutex
	readers     map[ddstypes.ParticipantId]*readerState
	writers     map[ddstypes.ParticipantId]participant.Writer

	taskSeq int
}

var _ bridge.Bridge = (*DataBridge)(nil)

// NewDataBridge creates a DataBridge for topic, not yet initialized.
func NewDataBridge(topic ddstypes.TopicId, pdb participants.Database, pool payloadpool.Pool, slots slotpool.Pool, log *slog.Logger) *DataBridge {
	if log == nil {
		log = slog.Default()
	}
	return &DataBridge{
		topic:   topic,
		pdb:     pdb,
		pool:    pool,
		slots:   slots,
		log:     log,
		state:   bridge.Created,
		readers: make(map[ddstypes.ParticipantId]*readerState),
		writers: make(map[ddstypes.ParticipantId]participant.Writer),
	}
}

// Topic implements bridge.Bridge.
func (b *DataBridge) Topic() ddstypes.TopicId { return b.topic }

// State implements bridge.Bridge.
func (b *DataBridge) State() bridge.State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// LastError returns the cause recorded by a failed Enable, if any.
func (b *DataBridge) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// Enable implements bridge.Bridge.
func (b *DataBridge) Enable() error {
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
		return ddserrors.NewInitialization("cannot enable a destroyed bridge for topic %s", b.topic)
	}

	b.state = bridge.Enabled

	// Any reader left with emitted == true by a prior disable mid-drain has
	// no task currently queued or running for it; re-kick those here so
	// buffered data is not stranded until the next data_available call.
	b.endpointsMu.RLock()
	for _, rs := range b.readers {
		rs.mu.Lock()
		stranded := rs.emitted
		rs.mu.Unlock()
		if stranded {
			b.slots.Emit(rs.taskId)
		}
	}
	b.endpointsMu.RUnlock()

	return nil
}

// Disable implements bridge.Bridge.
func (b *DataBridge) Disable() {
	b.stateMu.Lock()
	if b.state != bridge.Enabled {
		b.stateMu.Unlock()
		return
	}
	b.state = bridge.Disabled
	b.stateMu.Unlock()

	// Acquiring the exclusive lock guarantees every in-flight transmit
	// loop (holding the shared lock) has finished before this returns.
	b.onTransmission.Lock()
	b.onTransmission.Unlock()
}

// Destroy implements bridge.Bridge.
func (b *DataBridge) Destroy() {
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
	for _, rs := range b.readers {
		rs.mu.Lock()
		rs.removed = true
		rs.mu.Unlock()
		_ = rs.reader.Close()
	}
	for _, w := range b.writers {
		_ = w.Close()
	}
}

// initOnce creates a Reader/Writer through every participant registered
// in ParticipantsDatabase at the time of first enable, matching spec.md
// 4.3's "init is executed at most once (first enable)".
func (b *DataBridge) initOnce() error {
	ctx := context.Background()

	b.endpointsMu.Lock()
	defer b.endpointsMu.Unlock()

	for _, p := range b.pdb.All() {
		if reader, ok, err := p.CreateReader(ctx, b.topic); err != nil {
			return ddserrors.NewInitialization("create reader on participant %q for topic %s", p.Id(), b.topic).WithCause(err)
		} else if ok {
			b.taskSeq++
			rs := &readerState{
				participantId: p.Id(),
				reader:        reader,
				taskId:        slotpool.TaskId(string(p.Id()) + "/" + b.topic.String()),
			}
			b.readers[p.Id()] = rs
			b.registerReader(rs)
		}

		if writer, ok, err := p.CreateWriter(ctx, b.topic); err != nil {
			return ddserrors.NewInitialization("create writer on participant %q for topic %s", p.Id(), b.topic).WithCause(err)
		} else if ok {
			b.writers[p.Id()] = writer
		}
	}
	return nil
}

// registerReader wires rs.reader's data-available callback to the
// two-step emit dance from spec.md 4.3 step 2, and registers the transmit
// task in the shared SlotThreadPool.
func (b *DataBridge) registerReader(rs *readerState) {
	_ = b.slots.Register(rs.taskId, func() { b.transmit(rs) })

	rs.reader.SetDataAvailableCallback(func() {
		rs.mu.Lock()
		already := rs.emitted
		rs.emitted = true
		rs.mu.Unlock()

		if !already {
			b.slots.Emit(rs.taskId)
		}
	})
}

// transmit implements spec.md 4.3 step 3: drain rs.reader, republishing
// every sample to every other participant's writer, then clear the
// emitted flag and re-check for a race-safe re-emission.
func (b *DataBridge) transmit(rs *readerState) {
	b.onTransmission.RLock()
	defer b.onTransmission.RUnlock()

	for {
		if b.State() != bridge.Enabled {
			return
		}
		rs.mu.Lock()
		removed := rs.removed
		rs.mu.Unlock()
		if removed {
			return
		}

		sample, ok, err := rs.reader.Take()
		if err != nil {
			b.log.Warn("reader take failed", "topic", b.topic.String(), "participant", string(rs.participantId), "error", err)
			continue
		}
		if !ok {
			break
		}

		b.forward(rs.participantId, sample)
	}

	rs.mu.Lock()
	rs.emitted = false
	stillHasData := rs.reader.HasData()
	if stillHasData {
		rs.emitted = true
	}
	rs.mu.Unlock()

	if stillHasData {
		b.slots.Emit(rs.taskId)
	}
}

// forward writes sample to every writer except the one owned by the
// source participant, sharing the payload once per peer.
func (b *DataBridge) forward(source ddstypes.ParticipantId, sample ddstypes.Sample) {
	type peer struct {
		id     ddstypes.ParticipantId
		writer participant.Writer
	}

	b.endpointsMu.RLock()
	peers := make([]peer, 0, len(b.writers))
	for pid, w := range b.writers {
		if pid != source {
			peers = append(peers, peer{id: pid, writer: w})
		}
	}
	b.endpointsMu.RUnlock()

	for _, p := range peers {
		shared, err := b.pool.Share(sample.Payload)
		if err != nil {
			b.log.Error("payload share failed", "topic", b.topic.String(), "error", err)
			continue
		}
		outgoing := sample
		outgoing.Payload = shared
		outgoing.ReceiverParticipant = p.id

		if err := p.writer.Write(context.Background(), outgoing); err != nil {
			b.log.Warn("writer failed, skipping peer", "topic", b.topic.String(), "error", err)
		}
		if err := b.pool.Release(shared); err != nil {
			b.log.Error("shared payload release failed", "topic", b.topic.String(), "error", err)
		}
	}

	if err := b.pool.Release(sample.Payload); err != nil {
		b.log.Error("payload release failed", "topic", b.topic.String(), "error", err)
	}
}
