// Package rolecoordinator defines the master/slave coordination
// contract spec.md §9 REDESIGN FLAGS asks for in place of the original
// global master_flag/force_exit variables.
package rolecoordinator

import "time"

// RoleCoordinator tracks whether this process is the active (master)
// instance of a redundant pair, and lets the slave instance detect
// master failover.
type RoleCoordinator interface {
	// IsMaster reports whether this process currently believes itself to
	// be the active instance.
	IsMaster() bool

	// ObserveHeartbeat records that a heartbeat from the current master
	// was just received, resetting the failover timer.
	ObserveHeartbeat()

	// WaitForFailover blocks until either a heartbeat is observed
	// (returns false: the master is still alive) or timeout elapses with
	// none observed (returns true: this instance should become master).
	WaitForFailover(timeout time.Duration) bool

	// Close releases the underlying heartbeat transport.
	Close() error
}
