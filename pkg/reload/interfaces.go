// Package reload defines the trigger contract DdsPipe's configuration
// reload is driven by: a file watch and/or a periodic tick, both
// funneled into a single callback.
package reload

// Trigger fires fn every time a reload should be attempted: once per
// detected file change, and once per tick of the configured period.
// fn is called from the Trigger's own goroutine; callers that need
// exclusivity with other DdsPipe access must synchronize themselves.
type Trigger interface {
	// Start begins watching/ticking. Start is idempotent; a second call
	// on an already-started Trigger is a no-op.
	Start() error

	// Stop halts watching/ticking and releases underlying resources.
	// Stop is idempotent.
	Stop()
}
