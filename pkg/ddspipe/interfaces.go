// Package ddspipe defines the DdsPipe orchestrator contract (spec.md
// 4.5/C10): the single object that owns every Bridge and drives their
// lifecycle off discovery events and configuration reloads.
package ddspipe

import "github.com/ddspipe/ddspipe/pkg/ddstypes"

// ReloadResult reports the outcome of a configuration reload.
type ReloadResult int

const (
	// Ok means the new configuration was applied.
	Ok ReloadResult = iota
	// NoChange means the new configuration equals the current one; no
	// bridges were touched.
	NoChange
	// Error means some change could not be applied. Per spec.md 4.5,
	// changes already applied before the failure are not rolled back.
	Error
)

func (r ReloadResult) String() string {
	switch r {
	case Ok:
		return "Ok"
	case NoChange:
		return "NoChange"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Configuration is the subset of a loaded document DdsPipe acts on:
// which topics are allowed/blocked for forwarding. Participant
// provisioning happens once at construction (spec.md does not allow
// reload to add or remove participants).
type Configuration struct {
	AllowTopics []string
	BlockTopics []string
}

// Pipe is the orchestrator surface: enable/disable every owned bridge,
// and recompute the allowed-topic policy on reload.
type Pipe interface {
	// Enable enables every bridge currently eligible under the active
	// policy (spec.md 4.5's construction-time and post-reload logic).
	Enable() error

	// Disable disables every owned bridge.
	Disable()

	// ReloadConfiguration recomputes the AllowedTopicList from cfg and
	// diffs it against the active one, enabling newly-allowed topics and
	// disabling newly-blocked ones.
	ReloadConfiguration(cfg Configuration) ReloadResult

	// KnownTopics returns every TopicId DdsPipe currently has a bridge
	// for, regardless of that bridge's enablement.
	KnownTopics() []ddstypes.TopicId
}
