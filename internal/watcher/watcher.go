// Package watcher monitors the shared rendezvous directory and nudges
// waiting polls when a review gate document appears. The bounded poll
// contract in the rendezvous package is unchanged; the watcher only
// shortens the latency between a file landing and the next check.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher emits a nudge for each relevant create or write in the shared
// directory. Nudges are delivered on a small buffered channel; a full
// channel drops the nudge because the next poll tick covers it anyway.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	nudge    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// New creates a Watcher over the shared directory.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:      dir,
		watcher:  fsw,
		nudge:    make(chan struct{}, 4),
		ctx:      ctx,
		cancel:   cancel,
		debounce: 20 * time.Millisecond,
	}, nil
}

// Nudge returns the channel waiting polls select on.
func (w *Watcher) Nudge() <-chan struct{} {
	return w.nudge
}

// Start begins watching the shared directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("failed to watch share dir, polls run unassisted")
		// Not fatal: the rendezvous polls work without nudges.
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

// relevant reports whether a file name belongs to the rendezvous protocol.
func relevant(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, "review_gate_") || strings.HasPrefix(name, "mcp_response")
}

// watchLoop coalesces bursts of events into single nudges.
func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !relevant(event.Name) {
				continue
			}

			// Editors write in bursts; one nudge per burst is enough.
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.emit)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) emit() {
	select {
	case w.nudge <- struct{}{}:
	default:
		// A pending nudge already covers this event.
	}
}
