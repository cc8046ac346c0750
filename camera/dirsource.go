package camera

import (
	"fmt"
	"image/jpeg"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirSourceOpts has options for a new DirSource.
type DirSourceOpts struct {
	Verbose bool

	// Interval is the minimum time between two delivered frames. Frame files
	// arriving faster are removed without decoding. Zero delivers every frame.
	Interval time.Duration

	// Op is the file operation that marks a frame file as complete, e.g.
	// fsnotify.Create for tools writing to a temporary name first.
	Op fsnotify.Op

	// OnClose is called by Close before the directory is removed, typically
	// to stop the process writing the frames.
	OnClose func()
}

// DirSource turns JPEG files written to a directory by an external capture
// tool into Events. Only the latest frame is kept when the reader is slower
// than the writer.
type DirSource struct {
	dir     string
	opts    DirSourceOpts
	events  chan Event
	watcher *fsnotify.Watcher
	once    sync.Once
}

// Check that DirSource implements interface Source.
var _ Source = (*DirSource)(nil)

// NewDirSource starts watching dir. The directory is owned by the source and
// removed on Close.
func NewDirSource(dir string, opts DirSourceOpts) (*DirSource, error) {
	if opts.Op == 0 {
		opts.Op = fsnotify.Create
	}
	s := &DirSource{
		dir:    dir,
		opts:   opts,
		events: make(chan Event, 1),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %v", err)
	}
	s.watcher = watcher

	go s.loop()

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("registering file change watcher for %s: %v", dir, err)
	}
	return s, nil
}

// Events returns a channel on which Events can be received.
func (s *DirSource) Events() chan Event {
	return s.events
}

func (s *DirSource) logf(format string, args ...interface{}) {
	if s.opts.Verbose {
		log.Printf(format, args...)
	}
}

func (s *DirSource) loop() {
	var last time.Time
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&s.opts.Op == 0 || !strings.HasSuffix(ev.Name, ".jpg") {
				continue
			}
			now := time.Now()
			if s.opts.Interval > 0 && now.Sub(last) < s.opts.Interval*9/10 {
				if err := os.Remove(ev.Name); err != nil {
					s.logf("removing skipped frame %q: %v", ev.Name, err)
				}
				continue
			}
			f, err := os.Open(ev.Name)
			if err != nil {
				s.logf("open written file %q: %v", ev.Name, err)
				continue
			}
			img, err := jpeg.Decode(f)
			f.Close()
			if err != nil {
				s.logf("decoding jpeg %q: %v (may be partially written)", ev.Name, err)
				continue
			}
			if err := os.Remove(ev.Name); err != nil {
				s.logf("removing frame %s: %v", ev.Name, err)
			}
			s.deliver(Event{Image: img})
			last = now

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.deliver(Event{Err: fmt.Errorf("watching for changes: %v", err)})
		}
	}
}

// deliver replaces an undelivered event with ev.
func (s *DirSource) deliver(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			s.logf("dropping frame, consumer still busy")
		default:
		}
	}
}

// Close stops the watcher, calls OnClose and removes the frame directory.
func (s *DirSource) Close() error {
	s.once.Do(func() {
		if s.opts.OnClose != nil {
			s.opts.OnClose()
		}
		s.watcher.Close()
		os.RemoveAll(s.dir)
	})
	return nil
}
