// Package reload implements reload.Trigger by combining an fsnotify
// watch on the configuration file with a time.Ticker for the periodic
// case, grounded on redpanda-data-connect/internal/config/watcher.go's
// direct use of github.com/fsnotify/fsnotify.
package reload

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/internal/logging"
	reloadpkg "github.com/ddspipe/ddspipe/pkg/reload"
)

// FileTrigger watches a single configuration file and/or ticks every
// period, calling onReload for each event; events are not debounced.
// Both sources funnel into one goroutine so DdsPipe.ReloadConfiguration
// is never called concurrently from this component (spec.md 4.5's "one
// orchestrator thread").
type FileTrigger struct {
	path     string
	period   time.Duration
	onReload func()
	log      logging.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

var _ reloadpkg.Trigger = (*FileTrigger)(nil)

// New builds a FileTrigger. path may be empty to disable file watching;
// period may be zero to disable the periodic tick. At least one of the
// two must be set for Start to do anything.
func New(path string, period time.Duration, onReload func(), log logging.Logger) *FileTrigger {
	if log == nil {
		log = logging.Discard()
	}
	return &FileTrigger{path: path, period: period, onReload: onReload, log: log}
}

// Start implements reload.Trigger.
func (t *FileTrigger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	if t.path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return ddserrors.NewInitialization("creating file watcher: %v", err).WithCause(err)
		}
		if err := watcher.Add(t.path); err != nil {
			watcher.Close()
			return ddserrors.NewInitialization("watching %s: %v", t.path, err).WithCause(err)
		}
		t.watcher = watcher
	}

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.started = true
	go t.run()
	return nil
}

// Stop implements reload.Trigger.
func (t *FileTrigger) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stopCh)
	t.mu.Unlock()

	<-t.doneCh
	if t.watcher != nil {
		t.watcher.Close()
	}
}

func (t *FileTrigger) run() {
	defer close(t.doneCh)

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if t.period > 0 {
		ticker = time.NewTicker(t.period)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error
	if t.watcher != nil {
		watchEvents = t.watcher.Events
		watchErrors = t.watcher.Errors
	}

	for {
		select {
		case <-t.stopCh:
			return
		case <-tickC:
			t.fire("periodic tick")
		case event, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				t.fire("file change: " + event.Name)
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			t.log.Warnf("file watcher error: %v", err)
		}
	}
}

func (t *FileTrigger) fire(reason string) {
	t.log.Debugf("reload triggered: %s", reason)
	if t.onReload != nil {
		t.onReload()
	}
}
