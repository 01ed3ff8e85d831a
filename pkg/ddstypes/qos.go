package ddstypes

// ReliabilityKind mirrors the two RTPS reliability kinds relevant to
// forwarding decisions.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind mirrors the RTPS durability kinds relevant to forwarding
// decisions.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
)

// QosSnapshot captures the QoS attributes that matter to the forwarding
// fabric: a change in either field is "forwarding-relevant" per spec and
// forces a disable/enable cycle on the owning bridge.
type QosSnapshot struct {
	Reliability ReliabilityKind
	Durability  DurabilityKind
}

// Equal reports whether two snapshots carry the same forwarding-relevant
// QoS.
func (q QosSnapshot) Equal(other QosSnapshot) bool {
	return q.Reliability == other.Reliability && q.Durability == other.Durability
}
