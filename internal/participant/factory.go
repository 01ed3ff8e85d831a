// Package participant hosts the factory that turns a config.ParticipantSpec
// into a concrete participant.Participant, per spec.md §6's "closed set,
// extensible via the factory" participant kinds.
package participant

import (
	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/internal/logging"
	"github.com/ddspipe/ddspipe/internal/participant/echo"
	"github.com/ddspipe/ddspipe/internal/participant/pubsub"
	"github.com/ddspipe/ddspipe/internal/participant/wire"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	participantpkg "github.com/ddspipe/ddspipe/pkg/participant"
)

// Factory constructs a Participant for a declared kind. New kinds are
// added by registering a constructor here; spec.md's factory is a
// closed set at any given build, open to extension by recompiling.
type Factory struct {
	log logging.Logger
}

// NewFactory builds a Factory that logs through log.
func NewFactory(log logging.Logger) *Factory {
	if log == nil {
		log = logging.Discard()
	}
	return &Factory{log: log}
}

// Create builds the participant.Participant for kind, using options for
// any kind-specific settings (e.g. pubsub's "url", wire's "target").
func (f *Factory) Create(id ddstypes.ParticipantId, kind string, options map[string]string) (participantpkg.Participant, error) {
	switch kind {
	case echo.Kind:
		return echo.New(id), nil

	case pubsub.Kind:
		url, ok := options["url"]
		if !ok || url == "" {
			return nil, ddserrors.NewConfiguration("pubsub participant %q requires an \"url\" option", id)
		}
		return pubsub.Connect(id, url, f.log.With("participant", string(id)))

	case wire.Kind:
		target, ok := options["target"]
		if !ok || target == "" {
			return nil, ddserrors.NewConfiguration("wire participant %q requires a \"target\" option", id)
		}
		return wire.Dial(id, target)

	default:
		return nil, ddserrors.NewConfiguration("unknown participant kind %q", kind)
	}
}
