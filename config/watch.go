// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"io"
	"time"

	"github.com/fsnotify/fsnotify"

	"hyperfetch"
)

// Watch reloads path on a write/create event and invokes onChange with the
// freshly converted Options, the same debounce-then-reload shape the
// teacher's plugin file watcher uses: an event arriving within 500 ms of
// the last handled one is dropped, and a reload that fails to load or
// convert is skipped without calling onChange. The returned io.Closer
// stops the watch.
func Watch(path string, onChange func(hyperfetch.Options)) (io.Closer, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	if err := fsWatcher.Add(path); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}

	stop := make(chan struct{})
	go watchLoop(fsWatcher, path, onChange, stop)

	return &watchHandle{watcher: fsWatcher, stop: stop}, nil
}

type watchHandle struct {
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

func (h *watchHandle) Close() error {
	close(h.stop)
	return h.watcher.Close()
}

func watchLoop(w *fsnotify.Watcher, path string, onChange func(hyperfetch.Options), stop chan struct{}) {
	const debounceDuration = 500 * time.Millisecond
	var lastEvent time.Time

	for {
		select {
		case <-stop:
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			now := time.Now()
			if !lastEvent.IsZero() && now.Sub(lastEvent) < debounceDuration {
				continue
			}
			lastEvent = now

			time.Sleep(100 * time.Millisecond) // let the writer finish
			cfg, err := Load(path)
			if err != nil {
				continue
			}
			opts, err := cfg.ToOptions()
			if err != nil {
				continue
			}
			onChange(opts)

		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
