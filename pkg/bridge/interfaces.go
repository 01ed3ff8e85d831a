// Package bridge defines the Bridge contract (spec.md C7/C9): the
// polymorphism the original inheritance hierarchy needed is exactly
// enable/disable/state, so this small interface replaces subclassing.
package bridge

import "github.com/ddspipe/ddspipe/pkg/ddstypes"

// State is a Bridge's lifecycle stage: Created -> Initialized ->
// Enabled <-> Disabled -> Destroyed.
type State int

const (
	Created State = iota
	Initialized
	Enabled
	Disabled
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Initialized:
		return "Initialized"
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// Bridge is the uniform surface DdsPipe drives every DataBridge and
// RpcBridge through.
type Bridge interface {
	// Topic identifies which topic (data or RPC) this bridge forwards.
	Topic() ddstypes.TopicId

	// Enable transitions Disabled/Created -> Enabled. The first call
	// performs one-shot initialization (endpoint creation); failure there
	// leaves the bridge Disabled with a recorded cause, observable via
	// State/LastError. Calling Enable while already Enabled is a no-op.
	Enable() error

	// Disable transitions Enabled -> Disabled, blocking until no further
	// write can be issued by this bridge. A no-op if already Disabled or
	// never initialized.
	Disable()

	// State reports the bridge's current lifecycle stage.
	State() State

	// Destroy disables the bridge (if needed) and releases its endpoints.
	// Destroy is idempotent.
	Destroy()
}
