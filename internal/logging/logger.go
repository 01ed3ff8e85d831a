// Package logging wraps log/slog behind the narrow facade used
// throughout this repository, grounded on the teacher's
// internal/log/slog.go Modular wrapper: a small interface so call
// sites never import log/slog directly, plus a With(...) that returns
// a child carrying structured fields forward.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// Logger is the facade every component in this repository logs
// through: bridges, the orchestrator, the worker pool, the CLI.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child Logger that includes the given key/value
	// pairs on every subsequent record, e.g. With("topic", t.String()).
	With(args ...any) Logger

	// Slog exposes the underlying *slog.Logger for components that are
	// already slog-native (slotpool, bridge, ddspipe all accept
	// *slog.Logger directly); bridges the facade back to the stdlib type
	// at the one seam where that is cheaper than a parallel interface.
	Slog() *slog.Logger
}

// Verbosity selects slog's level from the CLI's --log-verbosity flag.
type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityWarn
	VerbosityInfo
	VerbosityDebug
)

func (v Verbosity) level() slog.Level {
	switch v {
	case VerbosityError:
		return slog.LevelError
	case VerbosityWarn:
		return slog.LevelWarn
	case VerbosityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type modular struct {
	log *slog.Logger
}

// New builds a Logger writing JSON records to w at the given verbosity.
// filter, when non-empty, is an allow-glob (matched the same way
// AllowedTopicList matches topics) against the logger's "component"
// field, whether bound with With or set on the record itself; the
// handler drops records whose component does not match and records
// that carry no component at all.
func New(w io.Writer, verbosity Verbosity, filter string) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: verbosity.level()})
	var h slog.Handler = handler
	if filter != "" {
		h = &componentFilterHandler{next: handler, pattern: filter}
	}
	return &modular{log: slog.New(h)}
}

// componentFilterHandler drops records whose "component" attribute
// does not match pattern, implementing --log-filter the same way
// AllowedTopicList matches topic names: doublestar globs.
type componentFilterHandler struct {
	next      slog.Handler
	pattern   string
	component string // bound through WithAttrs; a record attribute overrides it
}

func (h *componentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	if matched, _ := doublestar.Match(h.pattern, component); !matched {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	return &componentFilterHandler{next: h.next.WithAttrs(attrs), pattern: h.pattern, component: component}
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	return &componentFilterHandler{next: h.next.WithGroup(name), pattern: h.pattern, component: h.component}
}

// NewTextLogger builds a Logger writing human-readable text records
// instead of JSON; it applies no component filter.
func NewTextLogger(w io.Writer, verbosity Verbosity) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: verbosity.level()})
	return &modular{log: slog.New(handler)}
}

// Discard returns a Logger that drops every record; used by tests that
// don't want to assert on log output.
func Discard() Logger {
	return &modular{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (m *modular) Debugf(format string, args ...any) { m.log.Debug(fmt.Sprintf(format, args...)) }
func (m *modular) Infof(format string, args ...any)  { m.log.Info(fmt.Sprintf(format, args...)) }
func (m *modular) Warnf(format string, args ...any)  { m.log.Warn(fmt.Sprintf(format, args...)) }
func (m *modular) Errorf(format string, args ...any) { m.log.Error(fmt.Sprintf(format, args...)) }

func (m *modular) With(args ...any) Logger {
	return &modular{log: m.log.With(args...)}
}

func (m *modular) Slog() *slog.Logger { return m.log }

// context key used to thread a request-scoped Logger through Contexts
// that cross a participant boundary (e.g. the wire kind's gRPC calls).
type contextKey struct{}

// IntoContext attaches log to ctx.
func IntoContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext retrieves the Logger attached by IntoContext, or Discard()
// if none was attached.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(contextKey{}).(Logger); ok {
		return log
	}
	return Discard()
}
