// Package watcher monitors /dev/input for keyboard hotplug so the
// Device Registry can grab newly attached devices and drop removed ones.
package watcher

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventKind distinguishes an added device node from a removed one.
type EventKind int

const (
	DeviceAdded EventKind = iota
	DeviceRemoved
)

// Event is a single hotplug notification for one /dev/input/eventN node.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher watches the input device directory for eventN node creation
// and removal.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string

	events chan Event
	errors chan error

	closeOnce sync.Once
	done      chan struct{}
}

// New watches dir (typically /dev/input) for device node changes.
func New(dir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		events:    make(chan Event, 16),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Events returns the channel of hotplug notifications.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of underlying fsnotify errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) run() {
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isEventNode(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create) != 0:
				w.send(Event{Kind: DeviceAdded, Path: ev.Name})
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.send(Event{Kind: DeviceRemoved, Path: ev.Name})
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// Stop ends the watch loop and releases the underlying inotify fd.
func (w *Watcher) Stop() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsWatcher.Close()
}

func isEventNode(path string) bool {
	base := path[strings.LastIndex(path, "/")+1:]
	return strings.HasPrefix(base, "event")
}
