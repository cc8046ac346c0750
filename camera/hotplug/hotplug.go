// Package hotplug reports capture devices being connected and disconnected.
//
// On Linux, Watcher observes video device nodes appearing in /dev. Elsewhere,
// Poller lists devices periodically and reports the difference.
package hotplug

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"

	"github.com/fsnotify/fsnotify"
)

// Source delivers device notifications until closed.
type Source interface {
	Notifications() <-chan camera.Notification
	Close() error
}

// Watcher watches a device directory for video nodes.
type Watcher struct {
	verbose bool
	watcher *fsnotify.Watcher
	notes   chan camera.Notification
	done    chan struct{}
	once    sync.Once
}

// Check that Watcher implements interface Source.
var _ Source = (*Watcher)(nil)

// NewWatcher starts watching dir, typically "/dev", for "video*" nodes.
func NewWatcher(dir string, verbose bool) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %v", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("registering file change watcher for %s: %v", dir, err)
	}
	w := &Watcher{
		verbose: verbose,
		watcher: fw,
		notes:   make(chan camera.Notification, 16),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "video") {
				continue
			}
			var n camera.Notification
			switch {
			case ev.Op&fsnotify.Create != 0:
				n = camera.Notification{Kind: camera.Connected, DeviceID: ev.Name}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				n = camera.Notification{Kind: camera.Disconnected, DeviceID: ev.Name}
			default:
				continue
			}
			w.send(n)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.verbose {
				log.Printf("watching for device changes: %v", err)
			}
		}
	}
}

func (w *Watcher) send(n camera.Notification) {
	select {
	case w.notes <- n:
	case <-w.done:
	default:
		if w.verbose {
			log.Printf("dropping device notification %s %s", n.Kind, n.DeviceID)
		}
	}
}

// Notifications returns the channel notifications are delivered on.
func (w *Watcher) Notifications() <-chan camera.Notification {
	return w.notes
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// Lister lists devices, e.g. a camera.Backend.
type Lister interface {
	ListDevices() ([]camera.Device, error)
}

// Poller lists devices at an interval and reports changes in the set of device
// IDs.
type Poller struct {
	lister   Lister
	interval time.Duration
	verbose  bool
	notes    chan camera.Notification
	done     chan struct{}
	once     sync.Once
}

// Check that Poller implements interface Source.
var _ Source = (*Poller)(nil)

// NewPoller starts polling l. The devices present at start are the baseline
// and not reported.
func NewPoller(l Lister, interval time.Duration, verbose bool) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := &Poller{
		lister:   l,
		interval: interval,
		verbose:  verbose,
		notes:    make(chan camera.Notification, 16),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Poller) loop() {
	known, err := p.ids()
	if err != nil && p.verbose {
		log.Printf("listing devices: %v", err)
	}
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
		}
		cur, err := p.ids()
		if err != nil {
			if p.verbose {
				log.Printf("listing devices: %v", err)
			}
			continue
		}
		for _, n := range diff(known, cur) {
			select {
			case p.notes <- n:
			case <-p.done:
				return
			}
		}
		known = cur
	}
}

func (p *Poller) ids() (map[string]bool, error) {
	devs, err := p.lister.ListDevices()
	if err != nil {
		return nil, err
	}
	m := map[string]bool{}
	for _, d := range devs {
		m[d.ID] = true
	}
	return m, nil
}

// diff returns Disconnected notifications for IDs gone from cur, followed by
// Connected notifications for new IDs, each sorted by ID.
func diff(prev, cur map[string]bool) []camera.Notification {
	var gone, added []string
	for id := range prev {
		if !cur[id] {
			gone = append(gone, id)
		}
	}
	for id := range cur {
		if !prev[id] {
			added = append(added, id)
		}
	}
	sort.Strings(gone)
	sort.Strings(added)

	var r []camera.Notification
	for _, id := range gone {
		r = append(r, camera.Notification{Kind: camera.Disconnected, DeviceID: id})
	}
	for _, id := range added {
		r = append(r, camera.Notification{Kind: camera.Connected, DeviceID: id})
	}
	return r
}

// Notifications returns the channel notifications are delivered on.
func (p *Poller) Notifications() <-chan camera.Notification {
	return p.notes
}

// Close stops polling.
func (p *Poller) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}
